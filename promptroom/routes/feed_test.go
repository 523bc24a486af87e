package routes

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"promptroom/promptroom/config"
	"promptroom/promptroom/feed"
	"promptroom/promptroom/sources/psql/dao"
	"promptroom/promptroom/sources/psql/models"
	"promptroom/promptroom/utils/logging"
)

func setupFeedServer(t *testing.T) (*httptest.Server, *feed.Bus, string, string) {
	t.Helper()
	logging.InitLogger()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.Room{}, &models.Message{}, &models.RoomRole{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ctx := context.Background()
	users := dao.NewUserDAO(db)
	rooms := dao.NewRoomDAO(db)
	user, err := users.CreateUser(ctx, "alice", "Алиса", "x")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	room, err := rooms.CreateRoom(ctx, "general", "", "gpt-4o-mini", 0.7, user.ID)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	cfg := config.Config{JWTSecret: "feed-test-secret"}
	bus := feed.NewBus()
	r := chi.NewRouter()
	r.Mount("/feed", FeedRoutes(rooms, dao.NewMessageDAO(db), dao.NewRoomRoleDAO(db), bus, cfg))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return srv, bus, room.ID.String(), token
}

func dialFeed(t *testing.T, srv *httptest.Server, roomID, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/feed/"+roomID+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	auth, _ := json.Marshal(map[string]string{"token": token})
	if err := conn.Write(ctx, websocket.MessageText, auth); err != nil {
		t.Fatalf("auth frame: %v", err)
	}
	// The snapshot is the first reply.
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("snapshot read: %v", err)
	}
	var snapshot struct {
		Room models.Room `json:"room"`
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("snapshot decode: %v", err)
	}
	if snapshot.Room.ID.String() != roomID {
		t.Fatalf("snapshot for wrong room: %s", snapshot.Room.ID)
	}
	return conn
}

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}

func TestFeedRelayDeliversEvents(t *testing.T) {
	srv, bus, roomID, token := setupFeedServer(t)
	conn := dialFeed(t, srv, roomID, token)
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, _ := json.Marshal(map[string]string{"text": "hi"})
	go func() {
		// Give the handler a moment to attach before publishing.
		time.Sleep(50 * time.Millisecond)
		var ev feed.Event
		ev.Table = feed.TableMessages
		ev.Type = feed.Insert
		ev.New = payload
		ev.RoomID = mustUUID(roomID)
		bus.Publish(ev)
	}()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("event read: %v", err)
	}
	var ev feed.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("event decode: %v", err)
	}
	if ev.Table != feed.TableMessages || ev.Type != feed.Insert {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestFeedRelayReleasesGoroutinesOnDisconnect(t *testing.T) {
	srv, _, roomID, token := setupFeedServer(t)

	// Warm up once so lazily started runtime goroutines don't skew the
	// baseline.
	warm := dialFeed(t, srv, roomID, token)
	warm.Close(websocket.StatusNormalClosure, "")
	time.Sleep(100 * time.Millisecond)

	const cycles = 5
	base := runtime.NumGoroutine()
	for i := 0; i < cycles; i++ {
		conn := dialFeed(t, srv, roomID, token)
		conn.Close(websocket.StatusNormalClosure, "")
	}

	// A leaked writer goroutine per connection would keep the count near
	// base+cycles forever.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() < base+cycles {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("goroutines did not drain after disconnects: base %d, now %d", base, runtime.NumGoroutine())
}
