package api

import (
    "net/http"
    "time"
)

type RouterOptions struct {
    AllowedOrigins []string
    RequestTimeout time.Duration
}

// Routes builds the full HTTP surface with its middleware chain.
func (h *Handler) Routes(opts RouterOptions) http.Handler {
    mux := http.NewServeMux()

    mux.HandleFunc("GET /api/health", h.Health)
    mux.HandleFunc("GET /api/models", h.Models)

    mux.Handle("GET /api/conversations", h.requireAuth(h.GetConversations))
    mux.Handle("GET /api/conversations/{id}/messages", h.requireAuth(h.GetMessages))
    mux.Handle("DELETE /api/conversations/{id}", h.requireAuth(h.DeleteConversation))
    mux.Handle("POST /api/chat", h.requireAuth(h.HandleChat))

    mux.HandleFunc("/", h.NotFound)

    return chainMiddlewares(mux,
        withRequestID(h.logger),
        withLogging(h.logger),
        withRecover(h.logger),
        withSecurityHeaders,
        withCORS(opts.AllowedOrigins),
        withDeadline(opts.RequestTimeout),
    )
}
