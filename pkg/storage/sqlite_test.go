package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/hollowfen/pasture/pkg/clock"
	"github.com/hollowfen/pasture/pkg/config"
	"github.com/hollowfen/pasture/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts NewSQLiteStoreOptions) *SQLiteStore {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "save.db")
	}
	store, err := NewSQLiteStore(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})
	return store
}

func testGameState() *types.SavedGameState {
	state := types.NewSavedGameState()
	state.Cows[1] = &types.CowState{
		Name:        "Clover",
		Position:    types.Position{X: 10, Y: 20},
		Hunger:      25,
		Happiness:   80,
		MilkReadyAt: 1000,
	}
	state.Inventory["milk"] = 3
	state.Stations[1] = &types.StationState{
		Kind:      "churn",
		Recipe:    "butter",
		StartedAt: 500,
		ReadyAt:   2000,
	}
	state.Coins = 120
	state.UnlockedRecipes = []string{"butter"}
	state.PlayTimeMillis = 60_000
	state.Stats = types.Stats{MilkCollected: 10, CowsAcquired: 1}
	return state
}

func TestSQLiteStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t, NewSQLiteStoreOptions{})
	ctx := context.Background()

	state := testGameState()
	overrides := config.OverrideMap{"COW.WALK_SPEED": 55.0}

	saved, err := store.Save(ctx, state, overrides)
	require.NoError(t, err)
	assert.Equal(t, CurrentSaveVersion, saved.Version)
	assert.NotZero(t, saved.SavedAt)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, loaded.GameState)
	assert.Equal(t, overrides, loaded.ConfigOverrides)
	assert.Equal(t, saved.SavedAt, loaded.SavedAt)
}

func TestSQLiteStore_SaveCopiesState(t *testing.T) {
	store := newTestStore(t, NewSQLiteStoreOptions{})
	ctx := context.Background()

	state := testGameState()
	saved, err := store.Save(ctx, state, nil)
	require.NoError(t, err)

	// Mutating the caller's state after save must not affect the
	// envelope the store returned.
	state.Cows[1].Name = "Daisy"
	assert.Equal(t, "Clover", saved.GameState.Cows[1].Name)
}

func TestSQLiteStore_SavedAtStrictlyIncreases(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.UnixMilli(1000))
	store := newTestStore(t, NewSQLiteStoreOptions{Clock: fakeClock})
	ctx := context.Background()

	first, err := store.Save(ctx, testGameState(), nil)
	require.NoError(t, err)

	// Same wall-clock instant: the store must still advance savedAt.
	second, err := store.Save(ctx, testGameState(), nil)
	require.NoError(t, err)
	assert.Greater(t, second.SavedAt, first.SavedAt)
}

func TestSQLiteStore_LoadMissing(t *testing.T) {
	store := newTestStore(t, NewSQLiteStoreOptions{})

	_, err := store.Load(context.Background())
	assert.True(t, IsNotFound(err))
}

func TestSQLiteStore_ExistsDeleteInfo(t *testing.T) {
	store := newTestStore(t, NewSQLiteStoreOptions{})
	ctx := context.Background()

	exists, err := store.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	saved, err := store.Save(ctx, testGameState(), nil)
	require.NoError(t, err)

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, saved.SavedAt, info.SavedAt)
	assert.Equal(t, CurrentSaveVersion, info.Version)
	assert.Equal(t, int64(60_000), info.PlayTimeMillis)

	require.NoError(t, store.Delete(ctx))
	exists, err = store.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func writeRawEnvelope(t *testing.T, store *SQLiteStore, raw map[string]any) {
	t.Helper()
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	version := int(raw["version"].(float64))
	savedAt := int64(raw["savedAt"].(float64))
	q := `INSERT OR REPLACE INTO save_slot (id, version, saved_at, play_time, data) VALUES (1, ?, ?, 0, ?);`
	_, err = store.db.Exec(q, version, savedAt, data)
	require.NoError(t, err)
}

func TestSQLiteStore_LoadMigratesStaleSave(t *testing.T) {
	store := newTestStore(t, NewSQLiteStoreOptions{})
	ctx := context.Background()

	writeRawEnvelope(t, store, map[string]any{
		"version": 1.0,
		"savedAt": 5000.0,
		"gameState": map[string]any{
			"milk":   4.0,
			"cheese": 2.0,
			"cows": map[string]any{
				"1": map[string]any{
					"name":         "Clover",
					"lastMilkedAt": 1000.0,
				},
			},
		},
		"configOverrides": map[string]any{},
	})

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSaveVersion, loaded.Version)
	assert.Equal(t, int64(4), loaded.GameState.Inventory["milk"])
	assert.Equal(t, int64(2), loaded.GameState.Inventory["cheese"])
	assert.Equal(t, int64(91_000), loaded.GameState.Cows[1].MilkReadyAt)
	assert.Equal(t, int64(1), loaded.GameState.Stats.CowsAcquired)

	// The migrated envelope is re-persisted at the current version.
	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSaveVersion, info.Version)
}

func TestSQLiteStore_LoadMigrationGapKeepsData(t *testing.T) {
	// Only 2 -> 3 is registered, so a v1 save cannot be upgraded.
	store := newTestStore(t, NewSQLiteStoreOptions{
		Migrations: []Migration{DefaultMigrations()[1]},
	})
	ctx := context.Background()

	writeRawEnvelope(t, store, map[string]any{
		"version": 1.0,
		"savedAt": 5000.0,
		"gameState": map[string]any{
			"milk": 4.0,
		},
		"configOverrides": map[string]any{},
	})

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version)
}

func TestSQLiteStore_LoadFutureVersion(t *testing.T) {
	store := newTestStore(t, NewSQLiteStoreOptions{})
	ctx := context.Background()

	writeRawEnvelope(t, store, map[string]any{
		"version": float64(CurrentSaveVersion + 1),
		"savedAt": 5000.0,
		"gameState": map[string]any{
			"coins": 42.0,
		},
		"configOverrides": map[string]any{},
	})

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSaveVersion+1, loaded.Version)
	assert.Equal(t, int64(42), loaded.GameState.Coins)
}

func TestSQLiteStore_LoadDropsUnknownOverrides(t *testing.T) {
	store := newTestStore(t, NewSQLiteStoreOptions{Defaults: config.Defaults()})
	ctx := context.Background()

	writeRawEnvelope(t, store, map[string]any{
		"version":   float64(CurrentSaveVersion),
		"savedAt":   5000.0,
		"gameState": map[string]any{},
		"configOverrides": map[string]any{
			"COW.WALK_SPEED":   55.0,
			"FOO.REMOVED_KNOB": 5.0,
		},
	})

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, config.OverrideMap{"COW.WALK_SPEED": 55.0}, loaded.ConfigOverrides)
}

func TestSQLiteStore_Keys(t *testing.T) {
	store := newTestStore(t, NewSQLiteStoreOptions{})
	ctx := context.Background()

	_, err := store.GetKey(ctx, "user_id")
	assert.True(t, IsNotFound(err))

	require.NoError(t, store.SetKey(ctx, "user_id", "abc123"))
	value, err := store.GetKey(ctx, "user_id")
	require.NoError(t, err)
	assert.Equal(t, "abc123", value)

	require.NoError(t, store.DeleteKey(ctx, "user_id"))
	_, err = store.GetKey(ctx, "user_id")
	assert.True(t, IsNotFound(err))
}

func TestSQLiteStore_HistoryBounded(t *testing.T) {
	store := newTestStore(t, NewSQLiteStoreOptions{})
	ctx := context.Background()

	for _, entry := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.AppendHistory(ctx, "console_history", entry, 3))
	}

	entries, err := store.History(ctx, "console_history")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, entries)
}
