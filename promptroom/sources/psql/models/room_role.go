package models

import (
	"time"

	"github.com/google/uuid"

	"promptroom/promptroom/roles"
)

// RoomRole is the single role row per (room, user) pair. The composite
// primary key is what the upsert's conflict fallback relies on.
type RoomRole struct {
	RoomID     uuid.UUID  `json:"room_id" gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID  `json:"user_id" gorm:"type:uuid;primaryKey"`
	Role       roles.Role `json:"role" gorm:"type:varchar(16);not null"`
	AssignedBy uuid.UUID  `json:"assigned_by" gorm:"type:uuid"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
