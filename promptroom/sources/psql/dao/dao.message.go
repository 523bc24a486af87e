package dao

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"promptroom/promptroom/sources/psql/models"
)

type MessageDAO struct {
	DB *gorm.DB
}

func NewMessageDAO(db *gorm.DB) *MessageDAO {
	return &MessageDAO{DB: db}
}

func (dao *MessageDAO) SaveMessage(ctx context.Context, roomID uuid.UUID, senderID *uuid.UUID, senderName, text string) (*models.Message, error) {
	msg := models.Message{
		ID:         uuid.New(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		Timestamp:  time.Now(),
	}
	err := dao.DB.WithContext(ctx).Create(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetRoomMessages returns the room's messages in ascending logical order.
func (dao *MessageDAO) GetRoomMessages(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := dao.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetRecentMessages returns the latest limit messages in chronological order.
func (dao *MessageDAO) GetRecentMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := dao.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (dao *MessageDAO) DeleteMessages(ctx context.Context, roomID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return dao.DB.WithContext(ctx).
		Where("room_id = ? AND id IN ?", roomID, ids).
		Delete(&models.Message{}).Error
}

// SetEmbedding stores the serialized vector; losing the race against a bulk
// delete is fine, the update just affects zero rows.
func (dao *MessageDAO) SetEmbedding(ctx context.Context, id uuid.UUID, embedding string) error {
	return dao.DB.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Update("embedding", embedding).Error
}
