package controllers

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptroom/promptroom/apperrors"
	"promptroom/promptroom/feed"
	"promptroom/promptroom/roles"
	"promptroom/promptroom/sources/psql/dao"
	"promptroom/promptroom/sources/psql/models"
	"promptroom/promptroom/utils/logging"
)

type RoleController struct {
	rooms       *dao.RoomDAO
	memberRoles *dao.RoomRoleDAO
	pub         feed.Publisher
}

func NewRoleController(rooms *dao.RoomDAO, memberRoles *dao.RoomRoleDAO, pub feed.Publisher) *RoleController {
	return &RoleController{rooms: rooms, memberRoles: memberRoles, pub: pub}
}

// Assign grants newRole to targetUserID. A concurrent assignment racing the
// existence check resolves inside the DAO's upsert; the caller never sees
// the conflict.
func (c *RoleController) Assign(ctx context.Context, roomID, actingUserID, targetUserID uuid.UUID, newRole roles.Role) error {
	assignerRole, err := c.actingRole(ctx, roomID, actingUserID)
	if err != nil {
		return err
	}
	if !roles.CanAssignRole(assignerRole, newRole) {
		return apperrors.Forbidden("assign-role")
	}
	created, err := c.memberRoles.Upsert(ctx, roomID, targetUserID, newRole, actingUserID)
	if err != nil {
		return err
	}
	evType := feed.Update
	if created {
		evType = feed.Insert
	}
	c.publishRoleEvent(ctx, evType, roomID, targetUserID)
	return nil
}

// Remove deletes the role row; owner only.
func (c *RoleController) Remove(ctx context.Context, roomID, actingUserID, targetUserID uuid.UUID) error {
	assignerRole, err := c.actingRole(ctx, roomID, actingUserID)
	if err != nil {
		return err
	}
	if assignerRole != roles.Owner {
		return apperrors.Forbidden("remove-role")
	}
	if err := c.memberRoles.Remove(ctx, roomID, targetUserID); err != nil {
		return err
	}
	old, _ := json.Marshal(models.RoomRole{RoomID: roomID, UserID: targetUserID})
	c.pub.Publish(feed.Event{
		Table:  feed.TableRoomRoles,
		Type:   feed.Delete,
		RoomID: roomID,
		Old:    old,
	})
	return nil
}

func (c *RoleController) ListRoles(ctx context.Context, roomID uuid.UUID) ([]models.RoomRole, error) {
	return c.memberRoles.ListRoles(ctx, roomID)
}

func (c *RoleController) publishRoleEvent(ctx context.Context, evType feed.EventType, roomID, userID uuid.UUID) {
	row, err := c.memberRoles.GetRole(ctx, roomID, userID)
	if err != nil || row == nil {
		if err != nil {
			logging.ErrorLogger.Error("role event load failed", zap.Error(err))
		}
		return
	}
	payload, err := json.Marshal(row)
	if err != nil {
		logging.ErrorLogger.Error("role event marshal failed", zap.Error(err))
		return
	}
	c.pub.Publish(feed.Event{
		Table:  feed.TableRoomRoles,
		Type:   evType,
		RoomID: roomID,
		New:    payload,
	})
}

func (c *RoleController) actingRole(ctx context.Context, roomID, userID uuid.UUID) (roles.Role, error) {
	room, err := c.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	if room == nil {
		return "", apperrors.ErrNotFound
	}
	row, err := c.memberRoles.GetRole(ctx, roomID, userID)
	if err != nil {
		return "", err
	}
	var explicit roles.Role
	if row != nil {
		explicit = row.Role
	}
	return roles.ResolveRole(explicit, room.CreatedBy == userID), nil
}
