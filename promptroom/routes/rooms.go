package routes

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"promptroom/promptroom/config"
	"promptroom/promptroom/controllers"
	"promptroom/promptroom/middlewares"
	"promptroom/promptroom/utils/types"
)

func RoomRoutes(rooms *controllers.RoomController, roleCtrl *controllers.RoleController, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AuthMiddleware(cfg))

		gr.Post("/", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(uuid.UUID)
			var req types.CreateRoomRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			room, err := rooms.CreateRoom(r.Context(), userID, req.Title, req.SystemPrompt, req.Model, req.Temperature)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, room)
		})

		gr.Get("/", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(uuid.UUID)
			list, err := rooms.ListRooms(r.Context(), userID)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, list)
		})

		gr.Get("/{room_id}", func(w http.ResponseWriter, r *http.Request) {
			roomID, err := roomParam(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			room, err := rooms.GetRoom(r.Context(), roomID)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, room)
		})

		gr.Delete("/{room_id}", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(uuid.UUID)
			roomID, err := roomParam(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := rooms.DeleteRoom(r.Context(), userID, roomID); err != nil {
				writeErr(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		gr.Get("/{room_id}/messages", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(uuid.UUID)
			roomID, err := roomParam(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			msgs, err := rooms.GetMessages(r.Context(), userID, roomID)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, msgs)
		})

		gr.Post("/{room_id}/messages", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(uuid.UUID)
			roomID, err := roomParam(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var req types.SendMessageRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			userMsg, reply, err := rooms.SendMessage(r.Context(), userID, roomID, req.Text)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"message": userMsg,
				"reply":   reply,
			})
		})

		gr.Post("/{room_id}/messages/delete", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(uuid.UUID)
			roomID, err := roomParam(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var req types.DeleteMessagesRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ids := make([]uuid.UUID, 0, len(req.IDs))
			for _, raw := range req.IDs {
				id, err := uuid.Parse(raw)
				if err != nil {
					http.Error(w, "invalid message id: "+raw, http.StatusBadRequest)
					return
				}
				ids = append(ids, id)
			}
			if err := rooms.DeleteMessages(r.Context(), userID, roomID, ids); err != nil {
				writeErr(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		gr.Put("/{room_id}/prompt", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(uuid.UUID)
			roomID, err := roomParam(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var req types.EditPromptRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			room, err := rooms.EditPrompt(r.Context(), userID, roomID, req.SystemPrompt)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, room)
		})

		gr.Put("/{room_id}/title", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(uuid.UUID)
			roomID, err := roomParam(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var req types.RenameRoomRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			room, err := rooms.RenameRoom(r.Context(), userID, roomID, req.Title)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, room)
		})

		gr.Put("/{room_id}/model", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(uuid.UUID)
			roomID, err := roomParam(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var req types.ModelSettingsRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			room, err := rooms.UpdateModelSettings(r.Context(), userID, roomID, req.Model, req.Temperature)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, room)
		})

		gr.Get("/{room_id}/roles", func(w http.ResponseWriter, r *http.Request) {
			roomID, err := roomParam(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			rows, err := roleCtrl.ListRoles(r.Context(), roomID)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rows)
		})

		gr.Post("/{room_id}/roles", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(uuid.UUID)
			roomID, err := roomParam(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var req types.AssignRoleRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			targetID, err := uuid.Parse(req.UserID)
			if err != nil {
				http.Error(w, "invalid user id", http.StatusBadRequest)
				return
			}
			if err := roleCtrl.Assign(r.Context(), roomID, userID, targetID, req.Role); err != nil {
				writeErr(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		gr.Delete("/{room_id}/roles/{user_id}", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(uuid.UUID)
			roomID, err := roomParam(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
			if err != nil {
				http.Error(w, "invalid user id", http.StatusBadRequest)
				return
			}
			if err := roleCtrl.Remove(r.Context(), roomID, userID, targetID); err != nil {
				writeErr(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func roomParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "room_id"))
}
