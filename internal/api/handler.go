package api

import (
    "context"
    "encoding/json"
    "io"
    "net/http"
    "time"

    "github.com/RichardoC/padi-gateway/internal/auth"
    "github.com/RichardoC/padi-gateway/internal/chat"
    "github.com/RichardoC/padi-gateway/internal/db"
    "github.com/RichardoC/padi-gateway/internal/llm"
    "github.com/RichardoC/padi-gateway/internal/models"
    "github.com/RichardoC/padi-gateway/internal/observability"
    "github.com/pkg/errors"
    "go.uber.org/zap"
)

// Verifier resolves a bearer token to the authenticated principal.
type Verifier interface {
    Verify(ctx context.Context, token string) (*auth.Principal, error)
}

// ServiceStatus feeds the services block of the health response.
type ServiceStatus struct {
    Completion bool
    Identity   bool
}

type Handler struct {
    chat         *chat.Service
    verifier     Verifier
    logger       *zap.Logger
    status       ServiceStatus
    defaultModel string
    now          func() time.Time
}

func NewHandler(chatService *chat.Service, verifier Verifier, logger *zap.Logger, status ServiceStatus, defaultModel string) *Handler {
    if defaultModel == "" {
        defaultModel = models.DefaultModel
    }
    return &Handler{
        chat:         chatService,
        verifier:     verifier,
        logger:       logger,
        status:       status,
        defaultModel: defaultModel,
        now:          time.Now,
    }
}

const maxBodyBytes = 1 << 20

type ChatRequest struct {
    Prompt         string `json:"prompt"`
    ConversationID string `json:"conversation_id"`
    ModelName      string `json:"model_name"`
}

type ChatResponse struct {
    Content        string `json:"content"`
    ConversationID string `json:"conversation_id"`
    ModelUsed      string `json:"model_used"`
}

type HealthResponse struct {
    Status    string          `json:"status"`
    Timestamp string          `json:"timestamp"`
    Services  map[string]bool `json:"services"`
}

type ModelsResponse struct {
    Models  []models.ModelInfo `json:"models"`
    Default string             `json:"default"`
}

type errorResponse struct {
    Error   string `json:"error"`
    Details string `json:"details,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, HealthResponse{
        Status:    "OK",
        Timestamp: h.now().UTC().Format(time.RFC3339),
        Services: map[string]bool{
            "gemini":   h.status.Completion,
            "supabase": h.status.Identity,
        },
    })
}

func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, ModelsResponse{
        Models:  models.Catalog(),
        Default: h.defaultModel,
    })
}

func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
    principal := mustPrincipal(r)
    log := h.requestLogger(r)

    conversations, err := h.chat.ListConversations(r.Context(), principal.UserID)
    if err != nil {
        log.Error("Failed to get conversations", zap.Error(err))
        writeError(w, http.StatusInternalServerError, "Failed to fetch conversations", "")
        return
    }

    log.Debug("Retrieved conversations", zap.Int("count", len(conversations)))
    writeJSON(w, http.StatusOK, conversations)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
    principal := mustPrincipal(r)
    log := h.requestLogger(r)
    convID := r.PathValue("id")

    messages, err := h.chat.ListMessages(r.Context(), convID, principal.UserID)
    if errors.Is(err, db.ErrNotFound) {
        writeError(w, http.StatusNotFound, "Conversation not found", "")
        return
    }
    if err != nil {
        log.Error("Failed to get messages", zap.Error(err), zap.String("conversation_id", convID))
        writeError(w, http.StatusInternalServerError, "Failed to fetch messages", "")
        return
    }

    writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
    principal := mustPrincipal(r)
    log := h.requestLogger(r)

    var req ChatRequest
    if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
        writeError(w, http.StatusBadRequest, "Invalid request body", "")
        return
    }

    out, err := h.chat.SendMessage(r.Context(), chat.TurnInput{
        UserID:         principal.UserID,
        ConversationID: req.ConversationID,
        Prompt:         req.Prompt,
        Model:          req.ModelName,
    })
    if err != nil {
        h.writeChatError(w, log, err)
        return
    }

    writeJSON(w, http.StatusOK, ChatResponse{
        Content:        out.Content,
        ConversationID: out.ConversationID,
        ModelUsed:      out.ModelUsed,
    })
}

func (h *Handler) writeChatError(w http.ResponseWriter, log *zap.Logger, err error) {
    var storeErr *chat.StoreError
    switch {
    case errors.Is(err, chat.ErrValidation):
        writeError(w, http.StatusBadRequest, "Prompt is required", "")
    case errors.Is(err, llm.ErrInvalidCredential):
        log.Error("Completion rejected credential", zap.Error(err))
        writeError(w, http.StatusInternalServerError,
            "Invalid API key. Please check your Gemini API key configuration.", err.Error())
    case errors.As(err, &storeErr):
        log.Error("Failed to persist chat turn", zap.Error(err))
        writeError(w, http.StatusInternalServerError, "Failed to save conversation", err.Error())
    default:
        log.Error("Failed to generate response", zap.Error(err))
        writeError(w, http.StatusInternalServerError, "Failed to generate response", err.Error())
    }
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
    principal := mustPrincipal(r)
    convID := r.PathValue("id")

    if err := h.chat.DeleteConversation(r.Context(), convID, principal.UserID); err != nil {
        h.requestLogger(r).Error("Failed to delete conversation", zap.Error(err), zap.String("conversation_id", convID))
        writeError(w, http.StatusInternalServerError, "Failed to delete conversation", "")
        return
    }

    writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted successfully"})
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
    writeError(w, http.StatusNotFound, "Route not found", "")
}

func (h *Handler) requestLogger(r *http.Request) *zap.Logger {
    return observability.LoggerFromContext(r.Context(), h.logger)
}

// mustPrincipal is only called behind requireAuth.
func mustPrincipal(r *http.Request) *auth.Principal {
    p, ok := auth.PrincipalFromContext(r.Context())
    if !ok {
        panic("api: protected route served without principal")
    }
    return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json; charset=utf-8")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
    writeJSON(w, status, errorResponse{Error: msg, Details: details})
}
