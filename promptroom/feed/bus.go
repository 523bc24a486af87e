package feed

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Tables the feed carries events for.
const (
	TableMessages  = "messages"
	TableRooms     = "rooms"
	TableRoomRoles = "room_roles"
)

type EventType string

const (
	Insert EventType = "insert"
	Update EventType = "update"
	Delete EventType = "delete"
)

// Event is one row-level change. New carries the row after the change, Old
// the row before it (deletes only carry Old). Delivery is at-least-once and
// ordered only per row, never across rows.
type Event struct {
	Table  string          `json:"table"`
	Type   EventType       `json:"type"`
	RoomID uuid.UUID       `json:"room_id"`
	New    json.RawMessage `json:"new,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
}

// Publisher is what the command layer emits events through.
type Publisher interface {
	Publish(ev Event)
}

// ErrSubscriptionLost marks a subscription the bus had to terminate because
// the subscriber stopped draining it.
var ErrSubscriptionLost = errors.New("subscription buffer overflow")

// Filter selects events for one table. Empty Types matches every type.
type Filter struct {
	Table string
	Types []EventType
}

func (f Filter) matches(ev Event) bool {
	if ev.Table != f.Table {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == ev.Type {
			return true
		}
	}
	return false
}

type Subscription struct {
	id      uint64
	bus     *Bus
	roomID  uuid.UUID
	filters []Filter

	mu     sync.Mutex
	events chan Event
	closed bool
	err    error
}

// Events is the delivery channel. It is closed when the subscription ends,
// either by Close or because the bus dropped it; Err distinguishes the two.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Err reports why delivery ended. nil means a plain Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close is safe to call multiple times.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
	s.terminate(nil)
}

func (s *Subscription) terminate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.events)
}

func (s *Subscription) deliver(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

const subscriptionBuffer = 64

// Bus is the in-process change feed. Slow subscribers are dropped rather
// than blocking publishers; the drop is a terminal, observable status.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers for events of the given room matching any filter.
func (b *Bus) Subscribe(roomID uuid.UUID, filters ...Filter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		bus:     b,
		roomID:  roomID,
		filters: filters,
		events:  make(chan Event, subscriptionBuffer),
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s.id)
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	var lost []*Subscription
	for _, sub := range b.subs {
		if sub.roomID != uuid.Nil && sub.roomID != ev.RoomID {
			continue
		}
		matched := false
		for _, f := range sub.filters {
			if f.matches(ev) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if !sub.deliver(ev) {
			lost = append(lost, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range lost {
		b.unsubscribe(sub)
		sub.terminate(ErrSubscriptionLost)
	}
}
