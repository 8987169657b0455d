package models

import (
	"time"

	"gorm.io/datatypes"
)

// ConversationLog is one utterance of a session, written by the history collaborator.
type ConversationLog struct {
	ID        string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID string         `gorm:"column:session_id;type:text;index" json:"session_id"`
	Role      string         `gorm:"column:role;type:text" json:"role"` // "user" | "assistant"
	Content   string         `gorm:"column:content;type:text" json:"content"`
	ModelUsed string         `gorm:"column:model_used;type:text" json:"model_used,omitempty"`
	Timestamp time.Time      `gorm:"column:timestamp;type:timestamptz;index" json:"timestamp"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
}

func (ConversationLog) TableName() string { return "conversation_logs" }

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the in-memory history entry used to build prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
