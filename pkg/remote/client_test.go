package remote

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hollowfen/pasture/pkg/api"
	authlib "github.com/hollowfen/pasture/pkg/auth"
	authproviders "github.com/hollowfen/pasture/pkg/auth/providers"
	"github.com/hollowfen/pasture/pkg/config"
	"github.com/hollowfen/pasture/pkg/game/types"
	"github.com/hollowfen/pasture/pkg/repositories"
	"github.com/hollowfen/pasture/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prefixAuthProvider struct{}

func (p *prefixAuthProvider) VerifyToken(ctx context.Context, idToken string) (*authproviders.TokenClaims, error) {
	var uid string
	if _, err := fmt.Sscanf(idToken, "token-%s", &uid); err != nil {
		return nil, fmt.Errorf("invalid token %q", idToken)
	}
	return &authproviders.TokenClaims{UID: uid}, nil
}

type staticTokenSource struct {
	token string
	err   error
}

func (s *staticTokenSource) Token(ctx context.Context) (string, error) {
	return s.token, s.err
}

type neverOnline struct{}

func (neverOnline) Online(ctx context.Context) bool {
	return false
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := repositories.NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "saves.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close(context.Background())
	})

	server := httptest.NewServer(api.NewRouter(&prefixAuthProvider{}, repo, api.NewNotificationHub()))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, server *httptest.Server, sessionID, uid string) *Client {
	t.Helper()
	client, err := NewClient(NewClientOptions{
		BaseURL:       server.URL,
		SessionID:     sessionID,
		Tokens:        &staticTokenSource{token: "token-" + uid},
		HTTPClient:    server.Client(),
		OnlineChecker: AlwaysOnline{},
	})
	require.NoError(t, err)
	return client
}

func testEnvelope(savedAt int64) *storage.SaveEnvelope {
	state := types.NewSavedGameState()
	state.Coins = 120
	state.Inventory["milk"] = 4
	return &storage.SaveEnvelope{
		Version:         storage.CurrentSaveVersion,
		SavedAt:         savedAt,
		GameState:       state,
		ConfigOverrides: config.OverrideMap{"COW.WALK_SPEED": 55},
	}
}

func TestClient_PushPullRoundTrip(t *testing.T) {
	server := newBackend(t)
	client := newTestClient(t, server, "device-a", "alice")
	ctx := context.Background()

	require.NoError(t, client.Push(ctx, testEnvelope(1000)))

	pulled, err := client.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), pulled.SavedAt)
	assert.Equal(t, storage.CurrentSaveVersion, pulled.Version)
	assert.Equal(t, int64(120), pulled.GameState.Coins)
	assert.Equal(t, int64(4), pulled.GameState.Inventory["milk"])
	assert.Equal(t, config.OverrideMap{"COW.WALK_SPEED": 55}, pulled.ConfigOverrides)
}

func TestClient_PullMissingSave(t *testing.T) {
	server := newBackend(t)
	client := newTestClient(t, server, "device-a", "alice")

	_, err := client.Pull(context.Background())
	assert.True(t, IsNotFound(err))

	_, err = client.Info(context.Background())
	assert.True(t, IsNotFound(err))
}

func TestClient_Info(t *testing.T) {
	server := newBackend(t)
	client := newTestClient(t, server, "device-a", "alice")
	ctx := context.Background()

	require.NoError(t, client.Push(ctx, testEnvelope(2000)))

	info, err := client.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), info.SavedAt)
	assert.Equal(t, storage.CurrentSaveVersion, info.Version)
}

func TestClient_Delete(t *testing.T) {
	server := newBackend(t)
	client := newTestClient(t, server, "device-a", "alice")
	ctx := context.Background()

	require.NoError(t, client.Push(ctx, testEnvelope(1000)))
	require.NoError(t, client.Delete(ctx))

	_, err := client.Pull(ctx)
	assert.True(t, IsNotFound(err))

	assert.True(t, IsNotFound(client.Delete(ctx)))
}

func TestClient_TokenErrorShortCircuits(t *testing.T) {
	server := newBackend(t)
	client, err := NewClient(NewClientOptions{
		BaseURL:       server.URL,
		SessionID:     "device-a",
		Tokens:        &staticTokenSource{err: &authlib.ErrNotAuthenticated{}},
		HTTPClient:    server.Client(),
		OnlineChecker: AlwaysOnline{},
	})
	require.NoError(t, err)

	_, err = client.Pull(context.Background())
	assert.True(t, authlib.IsNotAuthenticated(err))
}

func TestClient_RejectedTokenIsNotAuthenticated(t *testing.T) {
	server := newBackend(t)
	client, err := NewClient(NewClientOptions{
		BaseURL:       server.URL,
		SessionID:     "device-a",
		Tokens:        &staticTokenSource{token: "garbage"},
		HTTPClient:    server.Client(),
		OnlineChecker: AlwaysOnline{},
	})
	require.NoError(t, err)

	_, err = client.Pull(context.Background())
	assert.True(t, authlib.IsNotAuthenticated(err))
}

func TestClient_UnreachableBackend(t *testing.T) {
	server := newBackend(t)
	server.Close()
	client := newTestClient(t, server, "device-a", "alice")

	_, err := client.Pull(context.Background())
	assert.True(t, IsUnreachable(err))
	assert.False(t, client.Reachable(context.Background()))
}

func TestClient_OfflineDevice(t *testing.T) {
	server := newBackend(t)
	server.Close()
	client, err := NewClient(NewClientOptions{
		BaseURL:       server.URL,
		SessionID:     "device-a",
		Tokens:        &staticTokenSource{token: "token-alice"},
		OnlineChecker: neverOnline{},
	})
	require.NoError(t, err)

	_, err = client.Pull(context.Background())
	assert.True(t, IsOffline(err))
}

func TestClient_Reachable(t *testing.T) {
	server := newBackend(t)
	client := newTestClient(t, server, "device-a", "alice")

	assert.True(t, client.Reachable(context.Background()))
}

func TestClient_SaveUpdateNotifications(t *testing.T) {
	server := newBackend(t)
	writer := newTestClient(t, server, "device-a", "alice")
	listener := newTestClient(t, server, "device-b", "alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan api.SaveUpdatedNotification, 1)
	go func() {
		_ = listener.SubscribeSaveUpdates(ctx, func(n api.SaveUpdatedNotification) {
			received <- n
		})
	}()

	// The subscription races with the first push, so keep pushing until
	// a notification comes through.
	deadline := time.After(3 * time.Second)
	savedAt := int64(3000)
	for {
		require.NoError(t, writer.Push(ctx, testEnvelope(savedAt)))
		select {
		case n := <-received:
			assert.Equal(t, api.NotificationTypeSaveUpdated, n.Type)
			assert.GreaterOrEqual(t, n.SavedAt, int64(3000))
			return
		case <-deadline:
			t.Fatal("timed out waiting for save updated notification")
		case <-time.After(100 * time.Millisecond):
			savedAt++
		}
	}
}
