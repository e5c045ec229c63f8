package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/RichardoC/padi-gateway/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a record does not exist or is not visible to the caller.
var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations(user_id, updated_at);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);`

type Database struct {
	db  *sql.DB
	now func() time.Time
}

const connParams = "_foreign_keys=on&_busy_timeout=5000"

// New opens the database at dbPath, which may be a plain path or a "file:"
// URI carrying its own query parameters. In-memory databases (":memory:" or
// mode=memory) are pinned to a single connection so every caller sees the
// same data; the data is lost on Close.
func New(dbPath string) (*Database, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dbPath+sep+connParams)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite at %s", dbPath)
	}
	if isMemory(dbPath) {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping sqlite at %s", dbPath)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init schema")
	}

	return &Database{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func isMemory(dbPath string) bool {
	return strings.HasPrefix(dbPath, ":memory:") ||
		strings.HasPrefix(dbPath, "file::memory:") ||
		strings.Contains(dbPath, "mode=memory")
}

func (db *Database) Close() error {
	return db.db.Close()
}

// Ping reports whether the database is reachable.
func (db *Database) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func (db *Database) FindConversation(ctx context.Context, id, ownerID string) (*models.Conversation, error) {
	query := `
        SELECT id, user_id, title, created_at, updated_at
        FROM conversations
        WHERE id = ? AND user_id = ?`

	var conv models.Conversation
	err := db.db.QueryRowContext(ctx, query, id, ownerID).
		Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find conversation")
	}
	return &conv, nil
}

func (db *Database) CreateConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error) {
	query := `
        INSERT INTO conversations (id, user_id, title, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)`

	now := db.now()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := db.db.ExecContext(ctx, query, conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt); err != nil {
		return nil, errors.Wrap(err, "insert conversation")
	}
	return conv, nil
}

// ListConversations returns the owner's conversations, most recently updated first.
func (db *Database) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	query := `
        SELECT id, user_id, title, created_at, updated_at
        FROM conversations
        WHERE user_id = ?
        ORDER BY updated_at DESC, rowid DESC`

	rows, err := db.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return []models.Conversation{}, errors.Wrap(err, "list conversations")
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return []models.Conversation{}, errors.Wrap(err, "scan conversation")
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return []models.Conversation{}, errors.Wrap(err, "iterate conversations")
	}
	return conversations, nil
}

func (db *Database) UpdateConversationTitle(ctx context.Context, id, title string) error {
	_, err := db.db.ExecContext(ctx,
		"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
		title, db.now(), id)
	return errors.Wrap(err, "update conversation title")
}

// DeleteConversation removes the conversation and its messages. A conversation
// owned by someone else is left untouched and no error is returned.
func (db *Database) DeleteConversation(ctx context.Context, id, ownerID string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin delete")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
        DELETE FROM messages
        WHERE conversation_id IN (SELECT id FROM conversations WHERE id = ? AND user_id = ?)`,
		id, ownerID); err != nil {
		return errors.Wrap(err, "delete messages")
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ? AND user_id = ?", id, ownerID); err != nil {
		return errors.Wrap(err, "delete conversation")
	}

	return errors.Wrap(tx.Commit(), "commit delete")
}

// ListMessages returns at most limit messages of a conversation, oldest first.
func (db *Database) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query := `
        SELECT id, conversation_id, role, content, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at ASC, rowid ASC
        LIMIT ?`

	rows, err := db.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return []models.Message{}, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConvID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return []models.Message{}, errors.Wrap(err, "scan message")
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return []models.Message{}, errors.Wrap(err, "iterate messages")
	}
	return messages, nil
}

// InsertMessage stores a message and bumps the parent conversation's updated_at.
func (db *Database) InsertMessage(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin insert message")
	}
	defer tx.Rollback()

	msg := &models.Message{
		ID:        uuid.NewString(),
		ConvID:    conversationID,
		Role:      role,
		Content:   content,
		CreatedAt: db.now(),
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO messages (id, conversation_id, role, content, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConvID, string(msg.Role), msg.Content, msg.CreatedAt); err != nil {
		return nil, errors.Wrap(err, "insert message")
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?",
		msg.CreatedAt, conversationID); err != nil {
		return nil, errors.Wrap(err, "touch conversation")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit insert message")
	}
	return msg, nil
}
