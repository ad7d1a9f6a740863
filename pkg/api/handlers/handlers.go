package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hollowfen/pasture/pkg/api/middleware"
	"github.com/hollowfen/pasture/pkg/log"
	"github.com/hollowfen/pasture/pkg/repositories"
	"github.com/hollowfen/pasture/pkg/repositories/models"
)

// SaveNotifier is implemented by the notification hub so save upserts
// can fan out to the user's other connected sessions.
type SaveNotifier interface {
	NotifySaveUpdated(userID string, exceptSessionID string, savedAt int64)
}

// UpsertSaveRequest is the PUT /api/save request body. The blobs are
// base64-encoded opaque payloads.
type UpsertSaveRequest struct {
	SavedAt         int64  `json:"saved_at"`
	Version         int    `json:"version"`
	GameState       []byte `json:"game_state"`
	ConfigOverrides []byte `json:"config_overrides"`
}

func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func HandleGetSave(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		save, err := repository.GetSave(r.Context(), user.UserID)
		if err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Save not found", http.StatusNotFound)
				return
			}
			log.Error("failed to get save: %v", err)
			http.Error(w, "Failed to get save", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(save); err != nil {
			log.Error("failed to encode save: %v", err)
			http.Error(w, "Failed to encode save", http.StatusInternalServerError)
			return
		}
	}
}

func HandleGetSaveInfo(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		info, err := repository.GetSaveInfo(r.Context(), user.UserID)
		if err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Save not found", http.StatusNotFound)
				return
			}
			log.Error("failed to get save info: %v", err)
			http.Error(w, "Failed to get save info", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error("failed to encode save info: %v", err)
			http.Error(w, "Failed to encode save info", http.StatusInternalServerError)
			return
		}
	}
}

func HandleUpsertSave(repository repositories.Repository, notifier SaveNotifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		req := &UpsertSaveRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.SavedAt <= 0 {
			http.Error(w, "saved_at must be positive", http.StatusBadRequest)
			return
		}
		if req.Version <= 0 {
			http.Error(w, "version must be positive", http.StatusBadRequest)
			return
		}
		if len(req.GameState) == 0 {
			http.Error(w, "game_state must not be empty", http.StatusBadRequest)
			return
		}

		err := repository.UpsertSave(r.Context(), &models.SaveRow{
			UserID:          user.UserID,
			SavedAt:         req.SavedAt,
			Version:         req.Version,
			GameState:       req.GameState,
			ConfigOverrides: req.ConfigOverrides,
		})
		if err != nil {
			log.Error("failed to upsert save: %v", err)
			http.Error(w, "Failed to upsert save", http.StatusInternalServerError)
			return
		}

		if notifier != nil {
			notifier.NotifySaveUpdated(user.UserID, r.Header.Get("X-Session-ID"), req.SavedAt)
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleDeleteSave(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		if err := repository.DeleteSave(r.Context(), user.UserID); err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Save not found", http.StatusNotFound)
				return
			}
			log.Error("failed to delete save: %v", err)
			http.Error(w, "Failed to delete save", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
