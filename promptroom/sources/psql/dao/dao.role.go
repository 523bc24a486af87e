package dao

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"promptroom/promptroom/roles"
	"promptroom/promptroom/sources/psql/models"
)

type RoomRoleDAO struct {
	DB *gorm.DB
}

func NewRoomRoleDAO(db *gorm.DB) *RoomRoleDAO {
	return &RoomRoleDAO{DB: db}
}

func (dao *RoomRoleDAO) GetRole(ctx context.Context, roomID, userID uuid.UUID) (*models.RoomRole, error) {
	var row models.RoomRole
	err := dao.DB.WithContext(ctx).
		First(&row, "room_id = ? AND user_id = ?", roomID, userID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (dao *RoomRoleDAO) ListRoles(ctx context.Context, roomID uuid.UUID) ([]models.RoomRole, error) {
	var rows []models.RoomRole
	err := dao.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("updated_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Upsert writes the single role row for (roomID, userID): update when a row
// exists, otherwise insert. An insert losing the race to a concurrent
// assignment hits the composite-key conflict and falls back to the update
// path exactly once. created reports whether a new row was inserted.
func (dao *RoomRoleDAO) Upsert(ctx context.Context, roomID, userID uuid.UUID, role roles.Role, assignedBy uuid.UUID) (created bool, err error) {
	existing, err := dao.GetRole(ctx, roomID, userID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, dao.updateRole(ctx, roomID, userID, role, assignedBy)
	}

	row := models.RoomRole{
		RoomID:     roomID,
		UserID:     userID,
		Role:       role,
		AssignedBy: assignedBy,
	}
	err = dao.DB.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, dao.updateRole(ctx, roomID, userID, role, assignedBy)
	}
	return err == nil, err
}

func (dao *RoomRoleDAO) updateRole(ctx context.Context, roomID, userID uuid.UUID, role roles.Role, assignedBy uuid.UUID) error {
	return dao.DB.WithContext(ctx).
		Model(&models.RoomRole{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Updates(map[string]interface{}{
			"role":        role,
			"assigned_by": assignedBy,
			"updated_at":  time.Now(),
		}).Error
}

func (dao *RoomRoleDAO) Remove(ctx context.Context, roomID, userID uuid.UUID) error {
	return dao.DB.WithContext(ctx).
		Delete(&models.RoomRole{}, "room_id = ? AND user_id = ?", roomID, userID).Error
}
