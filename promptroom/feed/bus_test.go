package feed

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestPublishMatchesTableAndRoom(t *testing.T) {
	bus := NewBus()
	roomA := uuid.New()
	roomB := uuid.New()

	sub := bus.Subscribe(roomA, Filter{Table: TableMessages, Types: []EventType{Insert}})
	defer sub.Close()

	bus.Publish(Event{Table: TableMessages, Type: Insert, RoomID: roomB})
	bus.Publish(Event{Table: TableRooms, Type: Update, RoomID: roomA})
	bus.Publish(Event{Table: TableMessages, Type: Delete, RoomID: roomA})
	bus.Publish(Event{Table: TableMessages, Type: Insert, RoomID: roomA})

	ev := recv(t, sub)
	if ev.Table != TableMessages || ev.Type != Insert || ev.RoomID != roomA {
		t.Errorf("unexpected event: %+v", ev)
	}
	select {
	case extra := <-sub.Events():
		t.Errorf("unexpected extra event: %+v", extra)
	default:
	}
}

func TestEmptyTypesMatchEverything(t *testing.T) {
	bus := NewBus()
	roomID := uuid.New()
	sub := bus.Subscribe(roomID, Filter{Table: TableRoomRoles})
	defer sub.Close()

	for _, typ := range []EventType{Insert, Update, Delete} {
		bus.Publish(Event{Table: TableRoomRoles, Type: typ, RoomID: roomID})
		if ev := recv(t, sub); ev.Type != typ {
			t.Errorf("expected %s event, got %s", typ, ev.Type)
		}
	}
}

func TestMultipleFiltersOnOneSubscription(t *testing.T) {
	bus := NewBus()
	roomID := uuid.New()
	sub := bus.Subscribe(roomID,
		Filter{Table: TableRooms, Types: []EventType{Update}},
		Filter{Table: TableRoomRoles},
	)
	defer sub.Close()

	bus.Publish(Event{Table: TableRooms, Type: Update, RoomID: roomID})
	bus.Publish(Event{Table: TableRoomRoles, Type: Delete, RoomID: roomID})

	if ev := recv(t, sub); ev.Table != TableRooms {
		t.Errorf("expected rooms event, got %+v", ev)
	}
	if ev := recv(t, sub); ev.Table != TableRoomRoles {
		t.Errorf("expected room_roles event, got %+v", ev)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(uuid.New(), Filter{Table: TableMessages})
	sub.Close()
	sub.Close()
	if sub.Err() != nil {
		t.Errorf("plain close should carry no error, got %v", sub.Err())
	}
	if _, ok := <-sub.Events(); ok {
		t.Errorf("events channel should be closed")
	}
}

func TestSlowSubscriberIsDroppedWithTerminalStatus(t *testing.T) {
	bus := NewBus()
	roomID := uuid.New()
	sub := bus.Subscribe(roomID, Filter{Table: TableMessages})

	// Never drained: overflow the buffer and one more to trigger the drop.
	for i := 0; i <= subscriptionBuffer; i++ {
		bus.Publish(Event{Table: TableMessages, Type: Insert, RoomID: roomID})
	}

	// Drain what was buffered; the channel must end up closed.
	for range sub.Events() {
	}
	if sub.Err() != ErrSubscriptionLost {
		t.Errorf("expected ErrSubscriptionLost, got %v", sub.Err())
	}

	// The bus must keep working for other subscribers.
	other := bus.Subscribe(roomID, Filter{Table: TableMessages})
	defer other.Close()
	bus.Publish(Event{Table: TableMessages, Type: Insert, RoomID: roomID})
	recv(t, other)
}
