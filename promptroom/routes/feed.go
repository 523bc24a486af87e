package routes

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptroom/promptroom/apperrors"
	"promptroom/promptroom/config"
	"promptroom/promptroom/feed"
	"promptroom/promptroom/middlewares"
	"promptroom/promptroom/session"
	"promptroom/promptroom/sources/psql/dao"
	"promptroom/promptroom/utils/logging"
)

// FeedRoutes exposes the change-feed relay: the client connects, presents a
// token in the first frame, receives a state snapshot, then a frame per
// feed event until it disconnects.
func FeedRoutes(rooms *dao.RoomDAO, messages *dao.MessageDAO, memberRoles *dao.RoomRoleDAO, bus *feed.Bus, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.HandleFunc("/{room_id}/ws", func(w http.ResponseWriter, r *http.Request) {
		roomID, err := uuid.Parse(chi.URLParam(r, "room_id"))
		if err != nil {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusInternalError, "internal error")

		ctx := r.Context()
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "unsupported data")
			return
		}
		var input struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(data, &input); err != nil {
			conn.Write(ctx, websocket.MessageText, []byte(`{"error":"invalid json"}`))
			return
		}
		userID, err := middlewares.ParseToken(input.Token, cfg.JWTSecret)
		if err != nil {
			conn.Write(ctx, websocket.MessageText, []byte(`{"error":"invalid token"}`))
			conn.Close(websocket.StatusPolicyViolation, "invalid token")
			return
		}

		s := session.NewRoomSession(rooms, messages, memberRoles, bus, userID)
		out := make(chan feed.Event, 64)
		s.OnEvent = func(ev feed.Event) {
			select {
			case out <- ev:
			default:
				// Slow client; the snapshot re-sync on reconnect covers it.
			}
		}
		if err := s.Attach(ctx, roomID); err != nil {
			if err == apperrors.ErrNotFound {
				conn.Close(websocket.StatusPolicyViolation, "room not found")
				return
			}
			logging.ErrorLogger.Error("feed attach failed", zap.Error(err))
			return
		}
		defer s.Detach()

		snapshot, err := json.Marshal(map[string]interface{}{
			"room":     s.Room(),
			"messages": s.Messages(),
			"members":  s.Members(),
			"role":     s.Role(),
		})
		if err != nil {
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, snapshot); err != nil {
			return
		}

		// The writer must not outlive the handler: out is never closed, so
		// cancellation is what releases it.
		writeCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case ev := <-out:
					frame, err := json.Marshal(ev)
					if err != nil {
						continue
					}
					if err := conn.Write(writeCtx, websocket.MessageText, frame); err != nil {
						return
					}
				}
			}
		}()

		// Drain the read side until the client goes away.
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				break
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	})
	return r
}
