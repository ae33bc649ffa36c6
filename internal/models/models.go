package models

import "time"

type SessionStatus string

const (
	SessionActive   SessionStatus = "ACTIVE"
	SessionArchived SessionStatus = "ARCHIVED"
	SessionDeleted  SessionStatus = "DELETED"
)

type SenderType string

const (
	SenderUser   SenderType = "USER"
	SenderAI     SenderType = "AI"
	SenderSystem SenderType = "SYSTEM"
)

// ChatSession is one ongoing exchange between a user and the assistant
type ChatSession struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Title     string        `json:"title"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Message is a single turn within a session. Messages are never updated.
type Message struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Sender    SenderType       `json:"sender_type"`
	Content   string           `json:"content"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"timestamp"`
}

// MessageMetadata is attached to AI messages produced after a tool call
type MessageMetadata struct {
	ToolUsed   string       `json:"tool_used,omitempty"`
	ToolResult *ToolOutcome `json:"tool_result,omitempty"`
}

// Empty reports whether the metadata carries nothing worth storing.
func (m *MessageMetadata) Empty() bool {
	return m == nil || (m.ToolUsed == "" && m.ToolResult == nil)
}

// Entity is a persisted span extracted from a user message
type Entity struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"chat_message_id"`
	Type       string    `json:"entity_type"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence_score"`
	CreatedAt  time.Time `json:"created_at"`
}
