package session

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptroom/promptroom/apperrors"
	"promptroom/promptroom/feed"
	"promptroom/promptroom/roles"
	"promptroom/promptroom/sources/psql/dao"
	"promptroom/promptroom/sources/psql/models"
	"promptroom/promptroom/utils/logging"
)

// Member is a room participant with their resolved role.
type Member struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   roles.Role `json:"role"`
}

const defaultRefetchDelay = 500 * time.Millisecond

// RoomSession mirrors one room for one signed-in user: the room's settings,
// the ordered message list, and the member roles, kept consistent against
// an at-least-once, unordered change feed.
//
// Duplicate message inserts (the local echo racing the feed) merge
// idempotently by id; room updates older than the held updated_at are
// dropped as stale replays.
type RoomSession struct {
	rooms    *dao.RoomDAO
	messages *dao.MessageDAO
	memberRs *dao.RoomRoleDAO
	bus      *feed.Bus
	userID   uuid.UUID

	// RefetchDelay is how long after an accepted room update the backstop
	// re-fetch runs. Set before Attach.
	RefetchDelay time.Duration
	// OnEvent, when set before Attach, receives every applied event. Used
	// by the websocket relay.
	OnEvent func(feed.Event)

	mu       sync.RWMutex
	attached bool
	room     models.Room
	msgs     []models.Message
	seen     map[uuid.UUID]struct{}
	role     roles.Role
	members  []Member
	msgSub   *feed.Subscription
	roomSub  *feed.Subscription
	refetch  *time.Timer
}

func NewRoomSession(rooms *dao.RoomDAO, messages *dao.MessageDAO, memberRoles *dao.RoomRoleDAO, bus *feed.Bus, userID uuid.UUID) *RoomSession {
	return &RoomSession{
		rooms:        rooms,
		messages:     messages,
		memberRs:     memberRoles,
		bus:          bus,
		userID:       userID,
		RefetchDelay: defaultRefetchDelay,
		seen:         make(map[uuid.UUID]struct{}),
	}
}

// Attach loads the room's current state and opens the two feed
// subscriptions. A load failure is terminal for this attempt; nothing is
// retried here.
func (s *RoomSession) Attach(ctx context.Context, roomID uuid.UUID) error {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return apperrors.ErrNotFound
	}
	msgs, err := s.messages.GetRoomMessages(ctx, roomID)
	if err != nil {
		return err
	}
	role, err := s.resolveRole(ctx, room)
	if err != nil {
		return err
	}
	members, err := s.loadMembers(ctx, room)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.room = *room
	s.msgs = msgs
	s.seen = make(map[uuid.UUID]struct{}, len(msgs))
	for _, m := range msgs {
		s.seen[m.ID] = struct{}{}
	}
	s.role = role
	s.members = members

	s.msgSub = s.bus.Subscribe(roomID,
		feed.Filter{Table: feed.TableMessages, Types: []feed.EventType{feed.Insert, feed.Delete}},
	)
	s.roomSub = s.bus.Subscribe(roomID,
		feed.Filter{Table: feed.TableRooms, Types: []feed.EventType{feed.Update}},
		feed.Filter{Table: feed.TableRoomRoles},
	)
	s.attached = true
	s.mu.Unlock()

	go s.consume(s.msgSub)
	go s.consume(s.roomSub)
	return nil
}

// Detach releases the subscriptions. Safe to call repeatedly and before a
// successful Attach; events arriving afterwards are no-ops.
func (s *RoomSession) Detach() {
	s.mu.Lock()
	s.attached = false
	if s.refetch != nil {
		s.refetch.Stop()
		s.refetch = nil
	}
	msgSub, roomSub := s.msgSub, s.roomSub
	s.msgSub, s.roomSub = nil, nil
	s.mu.Unlock()

	if msgSub != nil {
		msgSub.Close()
	}
	if roomSub != nil {
		roomSub.Close()
	}
}

func (s *RoomSession) consume(sub *feed.Subscription) {
	for ev := range sub.Events() {
		s.handle(ev)
	}
	// A dropped subscription leaves the session attached but without live
	// updates. Resubscribing is the application's call.
	if err := sub.Err(); err != nil {
		logging.ErrorLogger.Error("room feed subscription lost",
			zap.String("room_id", s.RoomID().String()), zap.Error(err))
	}
}

func (s *RoomSession) handle(ev feed.Event) {
	switch ev.Table {
	case feed.TableMessages:
		if ev.Type == feed.Delete {
			s.onMessageDeleted(ev)
		} else {
			s.onMessageInserted(ev)
		}
	case feed.TableRooms:
		s.onRoomUpdated(ev)
	case feed.TableRoomRoles:
		s.onRoleChanged(ev)
	}
}

// onMessageInserted merges the event's message into the local list unless
// that id is already present. The id check is what keeps the optimistic
// local echo and the feed copy from double-rendering.
func (s *RoomSession) onMessageInserted(ev feed.Event) {
	var msg models.Message
	if err := json.Unmarshal(ev.New, &msg); err != nil {
		logging.ErrorLogger.Error("bad message event payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return
	}
	if _, dup := s.seen[msg.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[msg.ID] = struct{}{}
	s.msgs = append(s.msgs, msg)
	// Display order is the logical timestamp, not arrival order.
	sort.SliceStable(s.msgs, func(i, j int) bool {
		return s.msgs[i].Timestamp.Before(s.msgs[j].Timestamp)
	})
	s.mu.Unlock()

	s.emit(ev)
}

// onMessageDeleted drops the deleted row from the mirror. Unknown ids are
// ignored, so a delivery racing the initial load is harmless.
func (s *RoomSession) onMessageDeleted(ev feed.Event) {
	var msg models.Message
	if err := json.Unmarshal(ev.Old, &msg); err != nil {
		logging.ErrorLogger.Error("bad message event payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return
	}
	if _, ok := s.seen[msg.ID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.seen, msg.ID)
	for i := range s.msgs {
		if s.msgs[i].ID == msg.ID {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.emit(ev)
}

// onRoomUpdated applies the event unless it is older than what we hold.
// Acceptance also schedules a re-fetch of the row as a backstop against
// partial event payloads.
func (s *RoomSession) onRoomUpdated(ev feed.Event) {
	var room models.Room
	if err := json.Unmarshal(ev.New, &room); err != nil {
		logging.ErrorLogger.Error("bad room event payload", zap.Error(err))
		return
	}

	if !s.applyRoom(room) {
		return
	}

	s.mu.Lock()
	if s.attached {
		if s.refetch != nil {
			s.refetch.Stop()
		}
		s.refetch = time.AfterFunc(s.RefetchDelay, s.refetchRoom)
	}
	s.mu.Unlock()

	s.emit(ev)
}

// applyRoom is the staleness guard: an update carrying an older updated_at
// than the current one is a replay and changes nothing. An absent
// updated_at is accepted (equal timestamps too, so same-instant writes
// resolve last-applied-wins).
func (s *RoomSession) applyRoom(incoming models.Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return false
	}
	if !incoming.UpdatedAt.IsZero() && incoming.UpdatedAt.Before(s.room.UpdatedAt) {
		return false
	}
	s.room.Title = incoming.Title
	s.room.SystemPrompt = incoming.SystemPrompt
	s.room.Model = incoming.Model
	s.room.Temperature = incoming.Temperature
	if !incoming.UpdatedAt.IsZero() {
		s.room.UpdatedAt = incoming.UpdatedAt
	}
	return true
}

func (s *RoomSession) refetchRoom() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.RLock()
	attached := s.attached
	roomID := s.room.ID
	s.mu.RUnlock()
	if !attached {
		return
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil || room == nil {
		if err != nil {
			logging.ErrorLogger.Error("room refetch failed", zap.Error(err))
		}
		return
	}
	s.applyRoom(*room)
}

// onRoleChanged refreshes the cached own role when the event concerns the
// signed-in user, and the member list in every case.
func (s *RoomSession) onRoleChanged(ev feed.Event) {
	payload := ev.New
	if ev.Type == feed.Delete {
		payload = ev.Old
	}
	var row models.RoomRole
	if err := json.Unmarshal(payload, &row); err != nil {
		logging.ErrorLogger.Error("bad role event payload", zap.Error(err))
		return
	}

	s.mu.RLock()
	attached := s.attached
	room := s.room
	s.mu.RUnlock()
	if !attached {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if row.UserID == s.userID {
		role, err := s.resolveRole(ctx, &room)
		if err != nil {
			logging.ErrorLogger.Error("role refresh failed", zap.Error(err))
		} else {
			s.mu.Lock()
			s.role = role
			s.mu.Unlock()
		}
	}

	members, err := s.loadMembers(ctx, &room)
	if err != nil {
		logging.ErrorLogger.Error("member refresh failed", zap.Error(err))
	} else {
		s.mu.Lock()
		s.members = members
		s.mu.Unlock()
	}

	s.emit(ev)
}

func (s *RoomSession) emit(ev feed.Event) {
	if s.OnEvent != nil {
		s.OnEvent(ev)
	}
}

func (s *RoomSession) resolveRole(ctx context.Context, room *models.Room) (roles.Role, error) {
	row, err := s.memberRs.GetRole(ctx, room.ID, s.userID)
	if err != nil {
		return "", err
	}
	var explicit roles.Role
	if row != nil {
		explicit = row.Role
	}
	return roles.ResolveRole(explicit, room.CreatedBy == s.userID), nil
}

func (s *RoomSession) loadMembers(ctx context.Context, room *models.Room) ([]Member, error) {
	rows, err := s.memberRs.ListRoles(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(rows)+1)
	creatorListed := false
	for _, r := range rows {
		if r.UserID == room.CreatedBy {
			creatorListed = true
		}
		members = append(members, Member{UserID: r.UserID, Role: r.Role})
	}
	if !creatorListed {
		members = append(members, Member{UserID: room.CreatedBy, Role: roles.Owner})
	}
	return members, nil
}

func (s *RoomSession) RoomID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room.ID
}

func (s *RoomSession) Room() models.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *RoomSession) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *RoomSession) Role() roles.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *RoomSession) Members() []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Member, len(s.members))
	copy(out, s.members)
	return out
}
