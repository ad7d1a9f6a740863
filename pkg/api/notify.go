package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/hollowfen/pasture/pkg/log"
	"nhooyr.io/websocket"
)

// SaveUpdatedNotification is pushed to a user's other connected sessions
// whenever one of their sessions uploads a save.
type SaveUpdatedNotification struct {
	Type    string `json:"type"`
	SavedAt int64  `json:"savedAt"`
}

const NotificationTypeSaveUpdated = "save_updated"

type notificationSession struct {
	id   string
	conn *websocket.Conn
}

// NotificationHub tracks the WebSocket subscriptions of each user so
// save updates can fan out to their other devices.
type NotificationHub struct {
	lock     sync.RWMutex
	sessions map[string]map[string]*notificationSession
}

func NewNotificationHub() *NotificationHub {
	return &NotificationHub{
		sessions: make(map[string]map[string]*notificationSession),
	}
}

// HandleSubscribe upgrades the request to a WebSocket connection and
// registers it under the user's ID. The X-Session-ID header (or a
// generated ID when absent) identifies the session so the writer of a
// save does not get notified about its own upload.
func (h *NotificationHub) HandleSubscribe(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Error("failed to accept websocket connection: %v", err)
		return
	}

	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	session := &notificationSession{
		id:   sessionID,
		conn: conn,
	}
	h.register(userID, session)
	log.Debug("session %s subscribed to notifications for user %s", sessionID, userID)

	defer func() {
		h.unregister(userID, sessionID)
		conn.Close(websocket.StatusNormalClosure, "")
		log.Debug("session %s unsubscribed from notifications for user %s", sessionID, userID)
	}()

	// Clients never send messages on this connection. Reading keeps the
	// connection alive and detects the close.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// NotifySaveUpdated sends a save_updated notification to every session
// of the user except the one identified by exceptSessionID.
func (h *NotificationHub) NotifySaveUpdated(userID string, exceptSessionID string, savedAt int64) {
	payload, err := json.Marshal(&SaveUpdatedNotification{
		Type:    NotificationTypeSaveUpdated,
		SavedAt: savedAt,
	})
	if err != nil {
		log.Error("failed to marshal save updated notification: %v", err)
		return
	}

	h.lock.RLock()
	targets := make([]*notificationSession, 0, len(h.sessions[userID]))
	for _, session := range h.sessions[userID] {
		if session.id == exceptSessionID {
			continue
		}
		targets = append(targets, session)
	}
	h.lock.RUnlock()

	for _, session := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := session.conn.Write(ctx, websocket.MessageText, payload); err != nil {
			log.Warn("failed to notify session %s: %v", session.id, err)
		}
		cancel()
	}
}

func (h *NotificationHub) register(userID string, session *notificationSession) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[string]*notificationSession)
	}
	h.sessions[userID][session.id] = session
}

func (h *NotificationHub) unregister(userID string, sessionID string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.sessions[userID], sessionID)
	if len(h.sessions[userID]) == 0 {
		delete(h.sessions, userID)
	}
}
