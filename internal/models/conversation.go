package models

import "time"

type Role string

const (
    RoleUser      Role = "user"
    RoleAssistant Role = "assistant"
)

type Message struct {
    ID        string    `json:"id"`
    ConvID    string    `json:"conversation_id"`
    Role      Role      `json:"role"`
    Content   string    `json:"content"`
    CreatedAt time.Time `json:"created_at"`
}

type Conversation struct {
    ID        string    `json:"id"`
    UserID    string    `json:"user_id"`
    Title     string    `json:"title"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}
