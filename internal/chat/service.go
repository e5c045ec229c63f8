package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/RichardoC/padi-gateway/internal/db"
	"github.com/RichardoC/padi-gateway/internal/models"
	"github.com/RichardoC/padi-gateway/internal/observability"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrValidation is returned for missing or malformed input, before any side effect.
var ErrValidation = errors.New("validation failed")

const (
	DefaultHistoryLimit = 20
	titleMaxRunes       = 50
)

// Store is the record store the orchestrator drives.
type Store interface {
	FindConversation(ctx context.Context, id, ownerID string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error)
	UpdateConversationTitle(ctx context.Context, id, title string) error
	DeleteConversation(ctx context.Context, id, ownerID string) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	InsertMessage(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error)
}

// Completer turns an assembled prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// StoreError wraps any record-store failure surfaced by the service.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

type Service struct {
	store        Store
	completer    Completer
	logger       *zap.Logger
	historyLimit int
	defaultModel string
}

func NewService(store Store, completer Completer, logger *zap.Logger, historyLimit int, defaultModel string) *Service {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if defaultModel == "" {
		defaultModel = models.DefaultModel
	}
	return &Service{
		store:        store,
		completer:    completer,
		logger:       logger,
		historyLimit: historyLimit,
		defaultModel: defaultModel,
	}
}

type TurnInput struct {
	UserID         string
	ConversationID string
	Prompt         string
	Model          string
}

type TurnOutput struct {
	Content        string
	ConversationID string
	ModelUsed      string
}

// SendMessage runs one chat turn. Writes made before a failing step stay committed.
func (s *Service) SendMessage(ctx context.Context, in TurnInput) (*TurnOutput, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, errors.Wrap(ErrValidation, "prompt is required")
	}
	model := in.Model
	if model == "" {
		model = s.defaultModel
	}

	log := observability.LoggerFromContext(ctx, s.logger).With(
		zap.String("user_id", in.UserID),
		zap.String("model", model),
	)

	conv, err := s.resolveConversation(ctx, in.ConversationID, in.UserID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv, err = s.store.CreateConversation(ctx, in.UserID, initialTitle(in.Prompt))
		if err != nil {
			log.Error("failed to create conversation", zap.Error(err))
			return nil, &StoreError{Op: "create conversation", Err: err}
		}
		log.Info("created conversation", zap.String("conversation_id", conv.ID))
	}
	log = log.With(zap.String("conversation_id", conv.ID))

	history, err := s.store.ListMessages(ctx, conv.ID, s.historyLimit)
	if err != nil {
		log.Error("failed to load history", zap.Error(err))
		return nil, &StoreError{Op: "list messages", Err: err}
	}

	if _, err := s.store.InsertMessage(ctx, conv.ID, models.RoleUser, in.Prompt); err != nil {
		log.Error("failed to save user message", zap.Error(err))
		return nil, &StoreError{Op: "insert user message", Err: err}
	}

	prompt := BuildContext(history, in.Prompt)
	log.Debug("assembled context",
		zap.Int("history_count", len(history)),
		zap.Int("prompt_len", len(prompt)))

	reply, err := s.completer.Complete(ctx, model, prompt)
	if err != nil {
		// The user message above stays persisted without a reply.
		log.Warn("completion failed, user message left without reply", zap.Error(err))
		return nil, err
	}

	if _, err := s.store.InsertMessage(ctx, conv.ID, models.RoleAssistant, reply); err != nil {
		log.Error("failed to save assistant message", zap.Error(err))
		return nil, &StoreError{Op: "insert assistant message", Err: err}
	}

	if len(history) == 0 {
		if err := s.store.UpdateConversationTitle(ctx, conv.ID, finalTitle(in.Prompt)); err != nil {
			// Title failures do not fail a completed turn.
			log.Warn("failed to update conversation title", zap.Error(err))
		}
	}

	log.Info("turn completed", zap.Int("reply_len", len(reply)))

	return &TurnOutput{
		Content:        reply,
		ConversationID: conv.ID,
		ModelUsed:      model,
	}, nil
}

// resolveConversation returns the caller's conversation with id, or nil when
// id is empty or does not resolve for the caller.
func (s *Service) resolveConversation(ctx context.Context, id, ownerID string) (*models.Conversation, error) {
	if id == "" {
		return nil, nil
	}
	conv, err := s.store.FindConversation(ctx, id, ownerID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "find conversation", Err: err}
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, ownerID)
	if err != nil {
		return nil, &StoreError{Op: "list conversations", Err: err}
	}
	return convs, nil
}

// ListMessages returns a conversation's messages, oldest first. The
// conversation must belong to ownerID, otherwise db.ErrNotFound is returned.
func (s *Service) ListMessages(ctx context.Context, conversationID, ownerID string) ([]models.Message, error) {
	if _, err := s.store.FindConversation(ctx, conversationID, ownerID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		return nil, &StoreError{Op: "find conversation", Err: err}
	}

	msgs, err := s.store.ListMessages(ctx, conversationID, s.historyLimit)
	if err != nil {
		return nil, &StoreError{Op: "list messages", Err: err}
	}
	return msgs, nil
}

func (s *Service) DeleteConversation(ctx context.Context, conversationID, ownerID string) error {
	if err := s.store.DeleteConversation(ctx, conversationID, ownerID); err != nil {
		return &StoreError{Op: "delete conversation", Err: err}
	}
	observability.LoggerFromContext(ctx, s.logger).Info("deleted conversation",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", ownerID))
	return nil
}

// initialTitle is the placeholder title given at creation.
func initialTitle(prompt string) string {
	return truncateRunes(prompt, titleMaxRunes) + "..."
}

// finalTitle is set after the first turn; the ellipsis marks a cut prompt.
func finalTitle(prompt string) string {
	if utf8.RuneCountInString(prompt) > titleMaxRunes {
		return truncateRunes(prompt, titleMaxRunes) + "..."
	}
	return prompt
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
