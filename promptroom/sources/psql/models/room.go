package models

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Title        string    `json:"title" gorm:"type:varchar(255);not null"`
	SystemPrompt string    `json:"system_prompt" gorm:"type:text"`
	Model        string    `json:"model" gorm:"type:varchar(128);not null"`
	Temperature  float64   `json:"temperature"`
	CreatedBy    uuid.UUID `json:"created_by" gorm:"type:uuid;not null"`
	CreatedAt    time.Time `json:"created_at"`
	// UpdatedAt orders concurrent settings writes; the sync layer drops
	// feed events carrying an older value.
	UpdatedAt time.Time `json:"updated_at"`
}
