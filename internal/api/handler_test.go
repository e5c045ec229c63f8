package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/RichardoC/padi-gateway/internal/auth"
    "github.com/RichardoC/padi-gateway/internal/chat"
    "github.com/RichardoC/padi-gateway/internal/db"
    "github.com/RichardoC/padi-gateway/internal/llm"
    "github.com/RichardoC/padi-gateway/internal/models"
    "github.com/pkg/errors"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"
)

// tokenVerifier maps tokens to user ids.
type tokenVerifier map[string]string

func (v tokenVerifier) Verify(ctx context.Context, token string) (*auth.Principal, error) {
    userID, ok := v[token]
    if !ok {
        return nil, auth.ErrUnauthenticated
    }
    return &auth.Principal{UserID: userID}, nil
}

type stubCompleter struct {
    reply string
    err   error
}

func (s *stubCompleter) Complete(ctx context.Context, model, prompt string) (string, error) {
    return s.reply, s.err
}

type testEnv struct {
    handler   http.Handler
    db        *db.Database
    completer *stubCompleter
}

func newTestEnv(t *testing.T) *testEnv {
    t.Helper()

    database, err := db.New(t.TempDir() + "/test.db")
    require.NoError(t, err)
    t.Cleanup(func() { database.Close() })

    completer := &stubCompleter{reply: "model reply"}
    svc := chat.NewService(database, completer, zap.NewNop(), 20, "")
    h := NewHandler(svc, tokenVerifier{"alice-token": "alice", "bob-token": "bob"}, zap.NewNop(),
        ServiceStatus{Completion: true, Identity: true}, "")
    h.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

    return &testEnv{
        handler:   h.Routes(RouterOptions{AllowedOrigins: []string{"*"}, RequestTimeout: 5 * time.Second}),
        db:        database,
        completer: completer,
    }
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
    t.Helper()
    var buf bytes.Buffer
    if body != nil {
        require.NoError(t, json.NewEncoder(&buf).Encode(body))
    }
    req := httptest.NewRequest(method, path, &buf)
    if token != "" {
        req.Header.Set("Authorization", "Bearer "+token)
    }
    rec := httptest.NewRecorder()
    e.handler.ServeHTTP(rec, req)
    return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
    t.Helper()
    var out T
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
    return out
}

func TestHealth(t *testing.T) {
    env := newTestEnv(t)

    rec := env.do(t, http.MethodGet, "/api/health", "", nil)
    require.Equal(t, http.StatusOK, rec.Code)

    resp := decodeJSON[HealthResponse](t, rec)
    require.Equal(t, "OK", resp.Status)
    require.Equal(t, "2024-05-01T12:00:00Z", resp.Timestamp)
    require.Equal(t, map[string]bool{"gemini": true, "supabase": true}, resp.Services)
    require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
    require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestModels(t *testing.T) {
    env := newTestEnv(t)

    rec := env.do(t, http.MethodGet, "/api/models", "", nil)
    require.Equal(t, http.StatusOK, rec.Code)

    resp := decodeJSON[ModelsResponse](t, rec)
    require.Equal(t, models.DefaultModel, resp.Default)
    require.Equal(t, models.Catalog(), resp.Models)
}

func TestUnknownRoute(t *testing.T) {
    env := newTestEnv(t)

    rec := env.do(t, http.MethodGet, "/api/nope", "", nil)
    require.Equal(t, http.StatusNotFound, rec.Code)
    require.Equal(t, "Route not found", decodeJSON[errorResponse](t, rec).Error)
}

func TestProtectedRoutesRejectMissingOrBadAuth(t *testing.T) {
    env := newTestEnv(t)

    cases := []struct {
        method string
        path   string
        header string
    }{
        {http.MethodGet, "/api/conversations", ""},
        {http.MethodGet, "/api/conversations/x/messages", "Basic abc"},
        {http.MethodPost, "/api/chat", "Bearer "},
        {http.MethodDelete, "/api/conversations/x", "Bearer wrong-token"},
    }
    for _, tc := range cases {
        req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(`{"prompt":"hi"}`))
        if tc.header != "" {
            req.Header.Set("Authorization", tc.header)
        }
        rec := httptest.NewRecorder()
        env.handler.ServeHTTP(rec, req)
        require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
    }

    convs, err := env.db.ListConversations(context.Background(), "alice")
    require.NoError(t, err)
    require.Empty(t, convs)
}

func TestChatFlow(t *testing.T) {
    env := newTestEnv(t)

    rec := env.do(t, http.MethodPost, "/api/chat", "alice-token", ChatRequest{Prompt: "hello"})
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

    resp := decodeJSON[ChatResponse](t, rec)
    require.Equal(t, "model reply", resp.Content)
    require.Equal(t, models.DefaultModel, resp.ModelUsed)
    require.NotEmpty(t, resp.ConversationID)

    rec = env.do(t, http.MethodPost, "/api/chat", "alice-token", ChatRequest{
        Prompt:         "again",
        ConversationID: resp.ConversationID,
        ModelName:      "gemini-1.5-flash",
    })
    require.Equal(t, http.StatusOK, rec.Code)
    second := decodeJSON[ChatResponse](t, rec)
    require.Equal(t, resp.ConversationID, second.ConversationID)
    require.Equal(t, "gemini-1.5-flash", second.ModelUsed)

    rec = env.do(t, http.MethodGet, "/api/conversations/"+resp.ConversationID+"/messages", "alice-token", nil)
    require.Equal(t, http.StatusOK, rec.Code)
    msgs := decodeJSON[[]models.Message](t, rec)
    require.Len(t, msgs, 4)
    require.Equal(t, "hello", msgs[0].Content)
    require.Equal(t, models.RoleAssistant, msgs[3].Role)

    rec = env.do(t, http.MethodGet, "/api/conversations", "alice-token", nil)
    require.Equal(t, http.StatusOK, rec.Code)
    convs := decodeJSON[[]models.Conversation](t, rec)
    require.Len(t, convs, 1)
    require.Equal(t, "hello", convs[0].Title)
}

func TestConversationsAreScopedToCaller(t *testing.T) {
    env := newTestEnv(t)

    rec := env.do(t, http.MethodPost, "/api/chat", "bob-token", ChatRequest{Prompt: "bob only"})
    require.Equal(t, http.StatusOK, rec.Code)
    bobConv := decodeJSON[ChatResponse](t, rec).ConversationID

    rec = env.do(t, http.MethodGet, "/api/conversations", "alice-token", nil)
    require.Equal(t, http.StatusOK, rec.Code)
    require.Empty(t, decodeJSON[[]models.Conversation](t, rec))

    rec = env.do(t, http.MethodGet, "/api/conversations/"+bobConv+"/messages", "alice-token", nil)
    require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatMissingPrompt(t *testing.T) {
    env := newTestEnv(t)

    rec := env.do(t, http.MethodPost, "/api/chat", "alice-token", map[string]string{"conversation_id": ""})
    require.Equal(t, http.StatusBadRequest, rec.Code)
    require.Equal(t, "Prompt is required", decodeJSON[errorResponse](t, rec).Error)

    convs, err := env.db.ListConversations(context.Background(), "alice")
    require.NoError(t, err)
    require.Empty(t, convs)
}

func TestChatCompletionErrors(t *testing.T) {
    env := newTestEnv(t)

    env.completer.err = &llm.CompletionError{Model: "m", Err: errors.New("quota exceeded")}
    rec := env.do(t, http.MethodPost, "/api/chat", "alice-token", ChatRequest{Prompt: "hi"})
    require.Equal(t, http.StatusInternalServerError, rec.Code)
    body := decodeJSON[errorResponse](t, rec)
    require.Equal(t, "Failed to generate response", body.Error)
    require.Contains(t, body.Details, "quota exceeded")

    env.completer.err = &llm.CompletionError{Model: "m", Err: errors.New("API key not valid"), InvalidCredential: true}
    rec = env.do(t, http.MethodPost, "/api/chat", "alice-token", ChatRequest{Prompt: "hi"})
    require.Equal(t, http.StatusInternalServerError, rec.Code)
    body = decodeJSON[errorResponse](t, rec)
    require.Contains(t, body.Error, "Invalid API key")
    require.Contains(t, body.Details, "API key not valid")
}

func TestDeleteConversation(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()

    rec := env.do(t, http.MethodPost, "/api/chat", "alice-token", ChatRequest{Prompt: "keep me"})
    require.Equal(t, http.StatusOK, rec.Code)
    convID := decodeJSON[ChatResponse](t, rec).ConversationID

    // Another user's delete reports success but changes nothing.
    rec = env.do(t, http.MethodDelete, "/api/conversations/"+convID, "bob-token", nil)
    require.Equal(t, http.StatusOK, rec.Code)
    require.Equal(t, "Conversation deleted successfully", decodeJSON[map[string]string](t, rec)["message"])

    _, err := env.db.FindConversation(ctx, convID, "alice")
    require.NoError(t, err)
    msgs, err := env.db.ListMessages(ctx, convID, 20)
    require.NoError(t, err)
    require.Len(t, msgs, 2)

    rec = env.do(t, http.MethodDelete, "/api/conversations/"+convID, "alice-token", nil)
    require.Equal(t, http.StatusOK, rec.Code)

    _, err = env.db.FindConversation(ctx, convID, "alice")
    require.ErrorIs(t, err, db.ErrNotFound)
}

func TestCORSPreflight(t *testing.T) {
    env := newTestEnv(t)

    req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
    req.Header.Set("Origin", "https://app.example")
    rec := httptest.NewRecorder()
    env.handler.ServeHTTP(rec, req)

    require.Equal(t, http.StatusNoContent, rec.Code)
    require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
    require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestRecoverFromPanic(t *testing.T) {
    h := chainMiddlewares(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        panic("boom")
    }), withRecover(zap.NewNop()))

    rec := httptest.NewRecorder()
    h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

    require.Equal(t, http.StatusInternalServerError, rec.Code)
    require.Equal(t, "Internal server error", decodeJSON[errorResponse](t, rec).Error)
}
