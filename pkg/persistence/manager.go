package persistence

import (
	"context"
	"net/http"
	stdsync "sync"

	"github.com/google/uuid"
	"github.com/hollowfen/pasture/pkg/auth"
	"github.com/hollowfen/pasture/pkg/clock"
	"github.com/hollowfen/pasture/pkg/config"
	"github.com/hollowfen/pasture/pkg/game/types"
	"github.com/hollowfen/pasture/pkg/log"
	"github.com/hollowfen/pasture/pkg/remote"
	"github.com/hollowfen/pasture/pkg/storage"
	pasturesync "github.com/hollowfen/pasture/pkg/sync"
)

// Manager is the single entry point the game talks to for persistence:
// it owns the live game state, the config overrides, the local save
// slot, the identity and the sync orchestrator.
type Manager struct {
	store   storage.Store
	cfg     *config.Manager
	gateway *auth.Gateway
	clk     clock.Clock

	stateLock stdsync.Mutex
	state     *types.SavedGameState

	syncLock     stdsync.Mutex
	remoteClient *remote.Client
	orchestrator *pasturesync.Orchestrator
}

type NewManagerOptions struct {
	Store storage.Store
	// Defaults is the config schema; defaults to config.Defaults().
	Defaults map[string]any
	Gateway  *auth.Gateway
	// Clock defaults to the system clock.
	Clock clock.Clock
}

func NewManager(opts NewManagerOptions) *Manager {
	defaults := opts.Defaults
	if defaults == nil {
		defaults = config.Defaults()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{
		store:   opts.Store,
		cfg:     config.NewManager(defaults),
		gateway: opts.Gateway,
		clk:     clk,
		state:   types.NewSavedGameState(),
	}
}

// LoadGame restores the game state and config overrides from the local
// save slot. A missing save returns nil without an error; callers start
// a new game with NewGame.
func (m *Manager) LoadGame(ctx context.Context) (*types.SavedGameState, error) {
	envelope, err := m.store.Load(ctx)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	m.cfg.Restore(envelope.ConfigOverrides)
	m.stateLock.Lock()
	m.state = envelope.GameState.Copy()
	m.stateLock.Unlock()
	return envelope.GameState, nil
}

// NewGame resets the live state to a fresh game with the configured
// starting coins.
func (m *Manager) NewGame() *types.SavedGameState {
	state := types.NewSavedGameState()
	if startingCoins, err := m.cfg.Value("ECONOMY.STARTING_COINS"); err == nil {
		state.Coins = int64(startingCoins)
	}
	m.stateLock.Lock()
	m.state = state.Copy()
	m.stateLock.Unlock()
	return state
}

// SaveGame persists the live state and current overrides to the local
// save slot.
func (m *Manager) SaveGame(ctx context.Context) (*storage.SaveEnvelope, error) {
	state, overrides := m.Snapshot()
	return m.store.Save(ctx, state, overrides)
}

// Snapshot returns a copy of the live state and the current overrides.
// It implements the autosave worker's state provider.
func (m *Manager) Snapshot() (*types.SavedGameState, config.OverrideMap) {
	m.stateLock.Lock()
	state := m.state.Copy()
	m.stateLock.Unlock()
	return state, m.cfg.Overrides()
}

// Mutate applies fn to the live state under the state lock.
func (m *Manager) Mutate(fn func(state *types.SavedGameState)) {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	fn(m.state)
}

// HasSaveData reports whether a local save exists.
func (m *Manager) HasSaveData(ctx context.Context) (bool, error) {
	return m.store.Exists(ctx)
}

// SaveInfo returns local save metadata without loading the payload.
func (m *Manager) SaveInfo(ctx context.Context) (*storage.SaveInfo, error) {
	return m.store.Info(ctx)
}

// DeleteSave removes the local save slot. The remote copy, if any, is
// left alone so another device can still pull it.
func (m *Manager) DeleteSave(ctx context.Context) error {
	return m.store.Delete(ctx)
}

// EffectiveConfig returns the defaults with overrides applied.
func (m *Manager) EffectiveConfig() map[string]any {
	return m.cfg.Effective()
}

// ConfigValue returns the effective value at a dotted path.
func (m *Manager) ConfigValue(path string) (float64, error) {
	return m.cfg.Value(path)
}

// SetConfigValue overrides a config value at a dotted path.
func (m *Manager) SetConfigValue(path string, value float64) error {
	return m.cfg.SetValue(path, value)
}

// ResetConfigValue removes the override at a dotted path.
func (m *Manager) ResetConfigValue(path string) error {
	return m.cfg.ResetValue(path)
}

// ResetAllConfigOverrides removes every override.
func (m *Manager) ResetAllConfigOverrides() {
	m.cfg.ResetAll()
}

// ConfigOverrides returns a copy of the current override set.
func (m *Manager) ConfigOverrides() config.OverrideMap {
	return m.cfg.Overrides()
}

// Gateway returns the auth gateway for sign-in flows.
func (m *Manager) Gateway() *auth.Gateway {
	return m.gateway
}

type SyncOptions struct {
	// BaseURL is the save backend root URL.
	BaseURL string
	// SessionID defaults to a random id per process.
	SessionID string
	// HTTPClient is optional (tests).
	HTTPClient *http.Client
	// OnlineChecker is optional (tests).
	OnlineChecker remote.OnlineChecker
	// Policy overrides the retry policy (tests).
	Policy *pasturesync.Policy
}

// InitializeSync establishes an identity and wires up the sync
// orchestrator. Without backend credentials it fails with
// ErrNotConfigured and the game keeps running offline-only.
func (m *Manager) InitializeSync(ctx context.Context, opts SyncOptions) error {
	if m.gateway == nil || !m.gateway.Configured() {
		return &auth.ErrNotConfigured{}
	}
	if _, err := m.gateway.Initialize(ctx); err != nil {
		return err
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	client, err := remote.NewClient(remote.NewClientOptions{
		BaseURL:       opts.BaseURL,
		SessionID:     sessionID,
		Tokens:        m.gateway,
		HTTPClient:    opts.HTTPClient,
		OnlineChecker: opts.OnlineChecker,
	})
	if err != nil {
		return err
	}

	m.syncLock.Lock()
	defer m.syncLock.Unlock()
	m.remoteClient = client
	m.orchestrator = pasturesync.NewOrchestrator(pasturesync.NewOrchestratorOptions{
		Store:    m.store,
		Remote:   client,
		Identity: m.gateway,
		Clock:    m.clk,
		Policy:   opts.Policy,
	})
	return nil
}

// Remote returns the backend client, or nil before InitializeSync.
func (m *Manager) Remote() *remote.Client {
	m.syncLock.Lock()
	defer m.syncLock.Unlock()
	return m.remoteClient
}

func (m *Manager) syncer() *pasturesync.Orchestrator {
	m.syncLock.Lock()
	defer m.syncLock.Unlock()
	return m.orchestrator
}

// Sync reconciles the local and remote saves. A pull refreshes the live
// state and overrides from the downloaded save.
func (m *Manager) Sync(ctx context.Context) (*pasturesync.Result, error) {
	orchestrator := m.syncer()
	if orchestrator == nil {
		return nil, &auth.ErrNotConfigured{}
	}
	result, err := orchestrator.Sync(ctx)
	if err != nil {
		return nil, err
	}
	return result, m.afterSync(ctx, result)
}

// ForcePush uploads the local save regardless of timestamps.
func (m *Manager) ForcePush(ctx context.Context) (*pasturesync.Result, error) {
	orchestrator := m.syncer()
	if orchestrator == nil {
		return nil, &auth.ErrNotConfigured{}
	}
	return orchestrator.ForcePush(ctx)
}

// ForcePull downloads the remote save regardless of timestamps and
// loads it into the live state.
func (m *Manager) ForcePull(ctx context.Context) (*pasturesync.Result, error) {
	orchestrator := m.syncer()
	if orchestrator == nil {
		return nil, &auth.ErrNotConfigured{}
	}
	result, err := orchestrator.ForcePull(ctx)
	if err != nil {
		return nil, err
	}
	return result, m.afterSync(ctx, result)
}

func (m *Manager) afterSync(ctx context.Context, result *pasturesync.Result) error {
	if result.Direction != pasturesync.DirectionPull {
		return nil
	}
	if _, err := m.LoadGame(ctx); err != nil {
		return err
	}
	log.Info("Loaded pulled save (savedAt=%d)", result.SyncedAt)
	return nil
}

// SyncState returns the current sync state. Before InitializeSync the
// game is considered offline.
func (m *Manager) SyncState() pasturesync.State {
	orchestrator := m.syncer()
	if orchestrator == nil {
		return pasturesync.State{Status: pasturesync.StatusOffline}
	}
	return orchestrator.State()
}

// OnSyncStateChange registers a listener for sync state transitions.
func (m *Manager) OnSyncStateChange(listener func(pasturesync.State)) func() {
	orchestrator := m.syncer()
	if orchestrator == nil {
		return func() {}
	}
	return orchestrator.OnStateChange(listener)
}

// Close flushes nothing; callers save explicitly before shutdown. It
// closes the local store.
func (m *Manager) Close(ctx context.Context) error {
	return m.store.Close(ctx)
}
