package models

import (
	"time"

	"github.com/google/uuid"
)

// Sender name conventions for non-human messages.
const (
	SenderLLM    = "LLM"
	SenderSystem = "Система"
)

type Message struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	RoomID uuid.UUID `json:"room_id" gorm:"type:uuid;not null;index"`
	// SenderID is null for model- and system-authored messages.
	SenderID   *uuid.UUID `json:"sender_id,omitempty" gorm:"type:uuid"`
	SenderName string     `json:"sender_name" gorm:"type:varchar(255);not null"`
	Text       string     `json:"text" gorm:"type:text;not null"`
	// Timestamp is the logical ordering key, distinct from row creation.
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
	// Embedding is a JSON-serialized float vector, populated best-effort
	// after the message is persisted.
	Embedding *string `json:"embedding,omitempty" gorm:"type:text"`
}
