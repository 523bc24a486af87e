package dao

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"promptroom/promptroom/sources/psql/models"
)

type RoomDAO struct {
	DB *gorm.DB
}

func NewRoomDAO(db *gorm.DB) *RoomDAO {
	return &RoomDAO{DB: db}
}

func (dao *RoomDAO) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	err := dao.DB.WithContext(ctx).First(&room, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (dao *RoomDAO) CreateRoom(ctx context.Context, title, systemPrompt, model string, temperature float64, createdBy uuid.UUID) (*models.Room, error) {
	room := models.Room{
		ID:           uuid.New(),
		Title:        title,
		SystemPrompt: systemPrompt,
		Model:        model,
		Temperature:  temperature,
		CreatedBy:    createdBy,
	}
	err := dao.DB.WithContext(ctx).Create(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateSettings writes the given fields and bumps updated_at, returning the
// row as persisted so callers can propagate the fresh timestamp.
func (dao *RoomDAO) UpdateSettings(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*models.Room, error) {
	fields["updated_at"] = time.Now()
	res := dao.DB.WithContext(ctx).Model(&models.Room{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return dao.GetRoom(ctx, id)
}

func (dao *RoomDAO) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Message{}, "room_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.RoomRole{}, "room_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Room{}, "id = ?", id).Error
	})
}

// ListRoomsForUser returns rooms the user created or holds a role row in.
func (dao *RoomDAO) ListRoomsForUser(ctx context.Context, userID uuid.UUID) ([]models.Room, error) {
	var rooms []models.Room
	err := dao.DB.WithContext(ctx).
		Where("created_by = ? OR id IN (?)",
			userID,
			dao.DB.Model(&models.RoomRole{}).Select("room_id").Where("user_id = ?", userID),
		).
		Order("created_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}
