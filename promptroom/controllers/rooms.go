package controllers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptroom/promptroom/apperrors"
	"promptroom/promptroom/feed"
	"promptroom/promptroom/roles"
	"promptroom/promptroom/services/llm"
	"promptroom/promptroom/sources/psql/dao"
	"promptroom/promptroom/sources/psql/models"
	"promptroom/promptroom/utils/logging"
)

// historyWindow bounds how many recent messages go into a completion request.
const historyWindow = 10

type RoomController struct {
	rooms        *dao.RoomDAO
	messages     *dao.MessageDAO
	memberRoles  *dao.RoomRoleDAO
	users        *dao.UserDAO
	orchestrator *llm.Orchestrator
	llmClient    *llm.Client
	embedModel   string
	pub          feed.Publisher
}

func NewRoomController(
	rooms *dao.RoomDAO,
	messages *dao.MessageDAO,
	memberRoles *dao.RoomRoleDAO,
	users *dao.UserDAO,
	orchestrator *llm.Orchestrator,
	llmClient *llm.Client,
	embedModel string,
	pub feed.Publisher,
) *RoomController {
	return &RoomController{
		rooms:        rooms,
		messages:     messages,
		memberRoles:  memberRoles,
		users:        users,
		orchestrator: orchestrator,
		llmClient:    llmClient,
		embedModel:   embedModel,
		pub:          pub,
	}
}

func (c *RoomController) CreateRoom(ctx context.Context, userID uuid.UUID, title, systemPrompt, model string, temperature *float64) (*models.Room, error) {
	return c.rooms.CreateRoom(ctx, title, systemPrompt, model, resolveTemperature(temperature), userID)
}

// resolveTemperature maps an absent temperature to the default; an explicit
// value, zero included, is only clamped.
func resolveTemperature(t *float64) float64 {
	if t == nil {
		return llm.DefaultTemperature
	}
	return llm.SanitizeTemperature(*t)
}

func (c *RoomController) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	room, err := c.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, apperrors.ErrNotFound
	}
	return room, nil
}

func (c *RoomController) ListRooms(ctx context.Context, userID uuid.UUID) ([]models.Room, error) {
	return c.rooms.ListRoomsForUser(ctx, userID)
}

func (c *RoomController) GetMessages(ctx context.Context, userID, roomID uuid.UUID) ([]models.Message, error) {
	room, role, err := c.roomAndRole(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !roles.CanViewMessages(role) {
		return nil, apperrors.Forbidden("view-messages")
	}
	return c.messages.GetRoomMessages(ctx, room.ID)
}

// SendMessage is the orchestration cycle: gate on role, persist the user's
// message, kick off best-effort embedding, re-read the room's settings from
// the store (not the caller's copy), request a completion over the recent
// window, and persist the reply. A completion failure never fails the send;
// it is downgraded to a persisted system message.
func (c *RoomController) SendMessage(ctx context.Context, userID, roomID uuid.UUID, text string) (userMsg, reply *models.Message, err error) {
	room, role, err := c.roomAndRole(ctx, roomID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !roles.CanSendMessages(role) {
		return nil, nil, apperrors.Forbidden("send-message")
	}

	user, err := c.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, apperrors.ErrNotFound
	}

	userMsg, err = c.messages.SaveMessage(ctx, room.ID, &userID, user.DisplayName, text)
	if err != nil {
		return nil, nil, err
	}
	c.publishMessage(userMsg)

	// Detached on purpose: embedding generation must never delay or fail
	// the reply path. Its only error sink is the logger.
	go c.generateEmbedding(userMsg.ID, text)

	// The room row is re-fetched so the completion uses the settings as
	// currently persisted, not a possibly stale in-memory copy.
	fresh, err := c.rooms.GetRoom(ctx, room.ID)
	if err != nil {
		return userMsg, nil, err
	}
	if fresh == nil {
		return userMsg, nil, apperrors.ErrNotFound
	}

	recent, err := c.messages.GetRecentMessages(ctx, room.ID, historyWindow)
	if err != nil {
		return userMsg, nil, err
	}
	history := make([]llm.HistoryEntry, len(recent))
	for i, m := range recent {
		history[i] = llm.HistoryEntry{SenderName: m.SenderName, Text: m.Text}
	}

	replyText, err := c.orchestrator.Complete(ctx, fresh.SystemPrompt, fresh.Model, fresh.Temperature, history)
	if err != nil {
		// The user's message stays saved; the failure becomes a system
		// message in the room instead of an error to the caller.
		logging.ErrorLogger.Error("completion failed",
			zap.String("room_id", room.ID.String()), zap.Error(err))
		sysMsg, saveErr := c.messages.SaveMessage(ctx, room.ID, nil, models.SenderSystem, upstreamText(err))
		if saveErr != nil {
			return userMsg, nil, saveErr
		}
		c.publishMessage(sysMsg)
		return userMsg, sysMsg, nil
	}

	reply, err = c.messages.SaveMessage(ctx, room.ID, nil, models.SenderLLM, replyText)
	if err != nil {
		return userMsg, nil, err
	}
	c.publishMessage(reply)
	return userMsg, reply, nil
}

func upstreamText(err error) string {
	if ue, ok := apperrors.AsUpstream(err); ok {
		return ue.Message
	}
	return err.Error()
}

func (c *RoomController) generateEmbedding(msgID uuid.UUID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vectors, err := c.llmClient.Embeddings(ctx, c.embedModel, []string{text})
	if err != nil {
		logging.ErrorLogger.Error("embedding generation failed",
			zap.String("message_id", msgID.String()), zap.Error(err))
		return
	}
	if len(vectors) == 0 {
		return
	}
	data, err := json.Marshal(vectors[0])
	if err != nil {
		logging.ErrorLogger.Error("embedding marshal failed", zap.Error(err))
		return
	}
	if err := c.messages.SetEmbedding(ctx, msgID, string(data)); err != nil {
		logging.ErrorLogger.Error("embedding save failed",
			zap.String("message_id", msgID.String()), zap.Error(err))
	}
}

func (c *RoomController) DeleteMessages(ctx context.Context, userID, roomID uuid.UUID, ids []uuid.UUID) error {
	room, role, err := c.roomAndRole(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !roles.CanDeleteMessages(role) {
		return apperrors.Forbidden("delete-messages")
	}
	if err := c.messages.DeleteMessages(ctx, room.ID, ids); err != nil {
		return err
	}
	for _, id := range ids {
		old, _ := json.Marshal(map[string]interface{}{"id": id, "room_id": room.ID})
		c.pub.Publish(feed.Event{
			Table:  feed.TableMessages,
			Type:   feed.Delete,
			RoomID: room.ID,
			Old:    old,
		})
	}
	return nil
}

func (c *RoomController) EditPrompt(ctx context.Context, userID, roomID uuid.UUID, prompt string) (*models.Room, error) {
	return c.updateSettings(ctx, userID, roomID, "edit-prompt", roles.CanEditPrompt,
		map[string]interface{}{"system_prompt": prompt})
}

func (c *RoomController) RenameRoom(ctx context.Context, userID, roomID uuid.UUID, title string) (*models.Room, error) {
	return c.updateSettings(ctx, userID, roomID, "rename-room", roles.CanRenameRoom,
		map[string]interface{}{"title": title})
}

func (c *RoomController) UpdateModelSettings(ctx context.Context, userID, roomID uuid.UUID, model string, temperature *float64) (*models.Room, error) {
	return c.updateSettings(ctx, userID, roomID, "update-model", roles.CanEditPrompt,
		map[string]interface{}{
			"model":       model,
			"temperature": resolveTemperature(temperature),
		})
}

func (c *RoomController) updateSettings(ctx context.Context, userID, roomID uuid.UUID, action string, allowed func(roles.Role) bool, fields map[string]interface{}) (*models.Room, error) {
	room, role, err := c.roomAndRole(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !allowed(role) {
		return nil, apperrors.Forbidden(action)
	}
	updated, err := c.rooms.UpdateSettings(ctx, room.ID, fields)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.ErrNotFound
	}
	payload, _ := json.Marshal(updated)
	c.pub.Publish(feed.Event{
		Table:  feed.TableRooms,
		Type:   feed.Update,
		RoomID: updated.ID,
		New:    payload,
	})
	return updated, nil
}

func (c *RoomController) DeleteRoom(ctx context.Context, userID, roomID uuid.UUID) error {
	room, role, err := c.roomAndRole(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !roles.CanDeleteRoom(role) {
		return apperrors.Forbidden("delete-room")
	}
	return c.rooms.DeleteRoom(ctx, room.ID)
}

func (c *RoomController) publishMessage(msg *models.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logging.ErrorLogger.Error("message event marshal failed", zap.Error(err))
		return
	}
	c.pub.Publish(feed.Event{
		Table:  feed.TableMessages,
		Type:   feed.Insert,
		RoomID: msg.RoomID,
		New:    payload,
	})
}

// roomAndRole loads the room and the acting user's effective role, applying
// the creator-as-owner fallback when no explicit role row exists.
func (c *RoomController) roomAndRole(ctx context.Context, roomID, userID uuid.UUID) (*models.Room, roles.Role, error) {
	room, err := c.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, "", err
	}
	if room == nil {
		return nil, "", apperrors.ErrNotFound
	}
	row, err := c.memberRoles.GetRole(ctx, roomID, userID)
	if err != nil {
		return nil, "", err
	}
	var explicit roles.Role
	if row != nil {
		explicit = row.Role
	}
	return room, roles.ResolveRole(explicit, room.CreatedBy == userID), nil
}
