package persistence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hollowfen/pasture/pkg/api"
	"github.com/hollowfen/pasture/pkg/auth"
	authproviders "github.com/hollowfen/pasture/pkg/auth/providers"
	"github.com/hollowfen/pasture/pkg/game/types"
	"github.com/hollowfen/pasture/pkg/remote"
	"github.com/hollowfen/pasture/pkg/repositories"
	pasturesync "github.com/hollowfen/pasture/pkg/sync"
	"github.com/hollowfen/pasture/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// anyAuthProvider maps every token to the same account, matching the
// fake identity server below.
type anyAuthProvider struct{}

func (p *anyAuthProvider) VerifyToken(ctx context.Context, idToken string) (*authproviders.TokenClaims, error) {
	return &authproviders.TokenClaims{UID: "user-1"}, nil
}

func newFakeIdentityServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts:signUp", func(w http.ResponseWriter, r *http.Request) {
		resp := auth.SignUpResponseBody{
			IDToken:      "id-token-1",
			RefreshToken: "refresh-token-1",
			ExpiresIn:    "3600",
			LocalID:      "user-1",
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		resp := auth.RefreshResponseBody{
			ExpiresIn:    "3600",
			TokenType:    "Bearer",
			RefreshToken: "refresh-token-1",
			IDToken:      "id-token-1",
			UserID:       "user-1",
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newFakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := repositories.NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "backend.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close(context.Background())
	})

	server := httptest.NewServer(api.NewRouter(&anyAuthProvider{}, repo, api.NewNotificationHub()))
	t.Cleanup(server.Close)
	return server
}

func newTestManager(t *testing.T, apiKey string, identityURL string) *Manager {
	t.Helper()
	store, err := storage.NewSQLiteStore(context.Background(), storage.NewSQLiteStoreOptions{
		Path: filepath.Join(t.TempDir(), "save.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	gateway := auth.NewGateway(auth.NewGatewayOptions{
		APIKey:      apiKey,
		IdentityURL: identityURL,
		TokenURL:    identityURL,
		Store:       store,
	})
	return NewManager(NewManagerOptions{
		Store:   store,
		Gateway: gateway,
	})
}

func initializeSync(t *testing.T, manager *Manager, backend *httptest.Server, sessionID string) {
	t.Helper()
	require.NoError(t, manager.InitializeSync(context.Background(), SyncOptions{
		BaseURL:       backend.URL,
		SessionID:     sessionID,
		OnlineChecker: remote.AlwaysOnline{},
	}))
}

func TestManager_LoadGameMissingSaveReturnsNil(t *testing.T) {
	manager := newTestManager(t, "", "")

	state, err := manager.LoadGame(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestManager_NewGameUsesStartingCoins(t *testing.T) {
	manager := newTestManager(t, "", "")

	state := manager.NewGame()
	assert.Equal(t, int64(50), state.Coins)
	assert.Empty(t, state.Cows)
}

func TestManager_SaveAndLoadRoundTrip(t *testing.T) {
	manager := newTestManager(t, "", "")
	ctx := context.Background()

	_, err := manager.LoadGame(ctx)
	require.NoError(t, err)

	manager.Mutate(func(state *types.SavedGameState) {
		state.Coins = 300
		state.Inventory["milk"] = 7
	})
	require.NoError(t, manager.SetConfigValue("COW.WALK_SPEED", 60))

	envelope, err := manager.SaveGame(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.CurrentSaveVersion, envelope.Version)

	state, err := manager.LoadGame(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(300), state.Coins)
	assert.Equal(t, int64(7), state.Inventory["milk"])

	speed, err := manager.ConfigValue("COW.WALK_SPEED")
	require.NoError(t, err)
	assert.Equal(t, 60.0, speed)
}

func TestManager_SetConfigValueBackToDefaultClearsOverride(t *testing.T) {
	manager := newTestManager(t, "", "")

	require.NoError(t, manager.SetConfigValue("COW.WALK_SPEED", 60))
	assert.Len(t, manager.ConfigOverrides(), 1)

	require.NoError(t, manager.SetConfigValue("COW.WALK_SPEED", 40))
	assert.Empty(t, manager.ConfigOverrides())
}

func TestManager_DeleteSave(t *testing.T) {
	manager := newTestManager(t, "", "")
	ctx := context.Background()

	_, err := manager.SaveGame(ctx)
	require.NoError(t, err)

	exists, err := manager.HasSaveData(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, manager.DeleteSave(ctx))
	exists, err = manager.HasSaveData(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestManager_SyncWithoutCredentials(t *testing.T) {
	manager := newTestManager(t, "", "")

	err := manager.InitializeSync(context.Background(), SyncOptions{BaseURL: "http://localhost:0"})
	assert.True(t, auth.IsNotConfigured(err))

	_, err = manager.Sync(context.Background())
	assert.True(t, auth.IsNotConfigured(err))

	assert.Equal(t, pasturesync.StatusOffline, manager.SyncState().Status)
}

func TestManager_TwoDevicesConverge(t *testing.T) {
	identity := newFakeIdentityServer(t)
	backend := newFakeBackend(t)
	ctx := context.Background()

	deviceA := newTestManager(t, "test-key", identity.URL)
	deviceB := newTestManager(t, "test-key", identity.URL)

	_, err := deviceA.LoadGame(ctx)
	require.NoError(t, err)
	deviceA.Mutate(func(state *types.SavedGameState) {
		state.Coins = 500
		state.UnlockedRecipes = append(state.UnlockedRecipes, "cheese")
	})
	require.NoError(t, deviceA.SetConfigValue("ECONOMY.MILK_PRICE", 6))
	_, err = deviceA.SaveGame(ctx)
	require.NoError(t, err)

	initializeSync(t, deviceA, backend, "device-a")
	result, err := deviceA.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, pasturesync.DirectionPush, result.Direction)

	initializeSync(t, deviceB, backend, "device-b")
	result, err = deviceB.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, pasturesync.DirectionPull, result.Direction)

	state, _ := deviceB.Snapshot()
	assert.Equal(t, int64(500), state.Coins)
	assert.Equal(t, []string{"cheese"}, state.UnlockedRecipes)

	price, err := deviceB.ConfigValue("ECONOMY.MILK_PRICE")
	require.NoError(t, err)
	assert.Equal(t, 6.0, price)

	assert.Equal(t, pasturesync.StatusSynced, deviceA.SyncState().Status)
	assert.Equal(t, pasturesync.StatusSynced, deviceB.SyncState().Status)
}

func TestManager_ForcePullRefreshesLiveState(t *testing.T) {
	identity := newFakeIdentityServer(t)
	backend := newFakeBackend(t)
	ctx := context.Background()

	deviceA := newTestManager(t, "test-key", identity.URL)
	deviceB := newTestManager(t, "test-key", identity.URL)

	deviceA.Mutate(func(state *types.SavedGameState) {
		state.Coins = 111
	})
	_, err := deviceA.SaveGame(ctx)
	require.NoError(t, err)
	initializeSync(t, deviceA, backend, "device-a")
	_, err = deviceA.ForcePush(ctx)
	require.NoError(t, err)

	// Device B has a newer local save that ForcePull overwrites.
	deviceB.Mutate(func(state *types.SavedGameState) {
		state.Coins = 999
	})
	_, err = deviceB.SaveGame(ctx)
	require.NoError(t, err)
	initializeSync(t, deviceB, backend, "device-b")

	result, err := deviceB.ForcePull(ctx)
	require.NoError(t, err)
	assert.Equal(t, pasturesync.DirectionPull, result.Direction)

	state, _ := deviceB.Snapshot()
	assert.Equal(t, int64(111), state.Coins)
}
