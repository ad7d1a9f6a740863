package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hollowfen/pasture/pkg/api"
	"github.com/hollowfen/pasture/pkg/api/handlers"
	"github.com/hollowfen/pasture/pkg/auth"
	"github.com/hollowfen/pasture/pkg/config"
	"github.com/hollowfen/pasture/pkg/game/types"
	"github.com/hollowfen/pasture/pkg/log"
	"github.com/hollowfen/pasture/pkg/repositories/models"
	"github.com/hollowfen/pasture/pkg/storage"
	"nhooyr.io/websocket"
)

// TokenSource provides a valid bearer token for backend requests.
// The auth gateway implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is the REST client for the save backend. Game state blobs are
// zstd-compressed before upload.
type Client struct {
	baseURL    string
	sessionID  string
	tokens     TokenSource
	httpClient *http.Client
	online     OnlineChecker
}

type NewClientOptions struct {
	// BaseURL is the backend root, e.g. "https://sync.example.com".
	BaseURL string
	// SessionID identifies this device session so it is not notified
	// about its own uploads.
	SessionID string
	Tokens    TokenSource
	// HTTPClient is optional and defaults to a client with a timeout.
	HTTPClient *http.Client
	// OnlineChecker is optional and defaults to resolving the backend host.
	OnlineChecker OnlineChecker
}

func NewClient(opts NewClientOptions) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	online := opts.OnlineChecker
	if online == nil {
		checker, err := NewDNSOnlineChecker(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create online checker: %v", err)
		}
		online = checker
	}
	return &Client{
		baseURL:    opts.BaseURL,
		sessionID:  opts.SessionID,
		tokens:     opts.Tokens,
		httpClient: httpClient,
		online:     online,
	}, nil
}

// Online reports whether the device has network connectivity.
func (c *Client) Online(ctx context.Context) bool {
	return c.online.Online(ctx)
}

// Reachable reports whether the backend answers its health endpoint.
func (c *Client) Reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Push uploads the envelope as the user's save, replacing any previous one.
func (c *Client) Push(ctx context.Context, envelope *storage.SaveEnvelope) error {
	gameState, err := json.Marshal(envelope.GameState)
	if err != nil {
		return fmt.Errorf("failed to marshal game state: %v", err)
	}
	compressed, err := compressPayload(gameState)
	if err != nil {
		return fmt.Errorf("failed to compress game state: %v", err)
	}
	overrides, err := json.Marshal(envelope.ConfigOverrides)
	if err != nil {
		return fmt.Errorf("failed to marshal config overrides: %v", err)
	}

	body, err := json.Marshal(&handlers.UpsertSaveRequest{
		SavedAt:         envelope.SavedAt,
		Version:         envelope.Version,
		GameState:       compressed,
		ConfigOverrides: overrides,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %v", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPut, "/api/save", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d uploading save", resp.StatusCode)
	}
	return nil
}

// Pull downloads the user's save and decodes it into an envelope.
func (c *Client) Pull(ctx context.Context) (*storage.SaveEnvelope, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/save", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d downloading save", resp.StatusCode)
	}

	row := &models.SaveRow{}
	if err := json.NewDecoder(resp.Body).Decode(row); err != nil {
		return nil, fmt.Errorf("failed to decode save: %v", err)
	}

	gameState, err := decompressPayload(row.GameState)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress game state: %v", err)
	}
	state := &types.SavedGameState{}
	if err := json.Unmarshal(gameState, state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game state: %v", err)
	}

	overrides := config.OverrideMap{}
	if len(row.ConfigOverrides) > 0 {
		if err := json.Unmarshal(row.ConfigOverrides, &overrides); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config overrides: %v", err)
		}
	}

	return &storage.SaveEnvelope{
		Version:         row.Version,
		SavedAt:         row.SavedAt,
		GameState:       state,
		ConfigOverrides: overrides,
	}, nil
}

// Info fetches the save's timestamp and version without its payload.
func (c *Client) Info(ctx context.Context) (*models.SaveInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/save/info", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching save info", resp.StatusCode)
	}

	info := &models.SaveInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, fmt.Errorf("failed to decode save info: %v", err)
	}
	return info, nil
}

// Delete removes the user's save from the backend.
func (c *Client) Delete(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/api/save", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d deleting save", resp.StatusCode)
	}
	return nil
}

// SubscribeSaveUpdates opens a WebSocket connection to the backend and
// invokes the handler for every save_updated notification until the
// context is canceled or the connection drops.
func (c *Client) SubscribeSaveUpdates(ctx context.Context, handler func(api.SaveUpdatedNotification)) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("X-Session-ID", c.sessionID)
	conn, _, err := websocket.Dial(ctx, c.baseURL+"/api/notifications", &websocket.DialOptions{
		HTTPClient: c.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return &ErrUnreachable{Err: err}
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		notification := api.SaveUpdatedNotification{}
		if err := json.Unmarshal(data, &notification); err != nil {
			log.Warn("failed to unmarshal notification: %v", err)
			continue
		}
		if notification.Type != api.NotificationTypeSaveUpdated {
			continue
		}
		handler(notification)
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Session-ID", c.sessionID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if !c.online.Online(ctx) {
			return nil, &ErrOffline{}
		}
		return nil, &ErrUnreachable{Err: err}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		resp.Body.Close()
		return nil, &auth.ErrNotAuthenticated{}
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, &ErrNotFound{}
	}
	return resp, nil
}
