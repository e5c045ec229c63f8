package api

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/RichardoC/padi-gateway/internal/auth"
    "github.com/RichardoC/padi-gateway/internal/observability"
    "github.com/google/uuid"
    "go.uber.org/zap"
)

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(status int) {
    r.status = status
    r.ResponseWriter.WriteHeader(status)
}

// withRequestID tags the request with an id and a logger carrying it.
func withRequestID(logger *zap.Logger) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            reqID := r.Header.Get("X-Request-ID")
            if reqID == "" {
                reqID = uuid.NewString()
            }
            w.Header().Set("X-Request-ID", reqID)

            ctx := observability.WithLogger(r.Context(), logger.With(zap.String("request_id", reqID)))
            next.ServeHTTP(w, r.WithContext(ctx))
        })
    }
}

// withLogging writes one access log line per request.
func withLogging(logger *zap.Logger) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            start := time.Now()
            rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

            next.ServeHTTP(rec, r)

            observability.LoggerFromContext(r.Context(), logger).Info("request",
                zap.String("method", r.Method),
                zap.String("path", r.URL.Path),
                zap.Int("status", rec.status),
                zap.Duration("duration", time.Since(start)))
        })
    }
}

// withRecover turns a handler panic into the generic 500 body.
func withRecover(logger *zap.Logger) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            defer func() {
                if v := recover(); v != nil {
                    observability.LoggerFromContext(r.Context(), logger).Error("panic serving request",
                        zap.Any("panic", v),
                        zap.String("path", r.URL.Path))
                    writeError(w, http.StatusInternalServerError, "Internal server error", "")
                }
            }()
            next.ServeHTTP(w, r)
        })
    }
}

// withCORS answers preflight requests and sets CORS headers for allowed origins.
func withCORS(allowedOrigins []string) func(http.Handler) http.Handler {
    allowAll := false
    allowed := make(map[string]bool, len(allowedOrigins))
    for _, o := range allowedOrigins {
        if o == "*" {
            allowAll = true
        }
        allowed[o] = true
    }

    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            origin := r.Header.Get("Origin")
            switch {
            case allowAll:
                w.Header().Set("Access-Control-Allow-Origin", "*")
            case origin != "" && allowed[origin]:
                w.Header().Set("Access-Control-Allow-Origin", origin)
                w.Header().Add("Vary", "Origin")
            }
            w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
            w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

            if r.Method == http.MethodOptions {
                w.WriteHeader(http.StatusNoContent)
                return
            }

            next.ServeHTTP(w, r)
        })
    }
}

func withSecurityHeaders(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        h := w.Header()
        h.Set("X-Content-Type-Options", "nosniff")
        h.Set("X-Frame-Options", "DENY")
        h.Set("Referrer-Policy", "no-referrer")
        next.ServeHTTP(w, r)
    })
}

// withDeadline bounds every request context; work still running past it is abandoned.
func withDeadline(timeout time.Duration) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        if timeout <= 0 {
            return next
        }
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            ctx, cancel := context.WithTimeout(r.Context(), timeout)
            defer cancel()
            next.ServeHTTP(w, r.WithContext(ctx))
        })
    }
}

// requireAuth rejects requests without a valid bearer token before the
// wrapped handler runs.
func (h *Handler) requireAuth(next http.HandlerFunc) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        header := r.Header.Get("Authorization")
        if header == "" {
            writeError(w, http.StatusUnauthorized, "No token provided", "")
            return
        }
        token, err := auth.BearerToken(header)
        if err != nil {
            writeError(w, http.StatusUnauthorized, "Invalid authorization header", "")
            return
        }

        principal, err := h.verifier.Verify(r.Context(), token)
        if err != nil || principal == nil || strings.TrimSpace(principal.UserID) == "" {
            h.requestLogger(r).Info("rejected bearer token", zap.Error(err))
            writeError(w, http.StatusUnauthorized, "Invalid token", "")
            return
        }

        next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
    })
}

// chainMiddlewares applies middlewares so the first one listed runs outermost.
func chainMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
    for i := len(middlewares) - 1; i >= 0; i-- {
        h = middlewares[i](h)
    }
    return h
}
