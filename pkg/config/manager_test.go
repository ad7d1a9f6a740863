package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SetAndResetValue(t *testing.T) {
	manager := NewManager(testDefaults())

	require.NoError(t, manager.SetValue("COW.WALK_SPEED", 55.0))
	value, err := manager.Value("COW.WALK_SPEED")
	require.NoError(t, err)
	assert.Equal(t, 55.0, value)
	assert.Equal(t, OverrideMap{"COW.WALK_SPEED": 55.0}, manager.Overrides())

	require.NoError(t, manager.ResetValue("COW.WALK_SPEED"))
	value, err = manager.Value("COW.WALK_SPEED")
	require.NoError(t, err)
	assert.Equal(t, 40.0, value)
	assert.Empty(t, manager.Overrides())
}

func TestManager_SetValueUnknownPath(t *testing.T) {
	manager := NewManager(testDefaults())
	assert.Error(t, manager.SetValue("FOO.REMOVED_KNOB", 5.0))
}

func TestManager_SetValueBackToDefaultClearsOverride(t *testing.T) {
	manager := NewManager(testDefaults())

	require.NoError(t, manager.SetValue("COW.MAX_COUNT", 20.0))
	require.NoError(t, manager.SetValue("COW.MAX_COUNT", 12.0))
	assert.Empty(t, manager.Overrides())
}

func TestManager_EffectiveIsIsolated(t *testing.T) {
	manager := NewManager(testDefaults())
	require.NoError(t, manager.SetValue("ECONOMY.MILK_PRICE", 6.0))

	tree := manager.Effective()
	assert.Equal(t, 6.0, tree["ECONOMY"].(map[string]any)["MILK_PRICE"])

	// Mutating the returned tree must not leak into the baseline.
	tree["ECONOMY"].(map[string]any)["MILK_PRICE"] = 100.0
	again := manager.Effective()
	assert.Equal(t, 6.0, again["ECONOMY"].(map[string]any)["MILK_PRICE"])
}

func TestManager_RestoreDropsUnknownPaths(t *testing.T) {
	manager := NewManager(testDefaults())

	dropped := manager.Restore(OverrideMap{
		"COW.WALK_SPEED":   55.0,
		"FOO.REMOVED_KNOB": 5.0,
	})
	assert.Equal(t, []string{"FOO.REMOVED_KNOB"}, dropped)
	assert.Equal(t, OverrideMap{"COW.WALK_SPEED": 55.0}, manager.Overrides())

	paths := ExtractNumericPaths(manager.Effective())
	_, exists := paths["FOO.REMOVED_KNOB"]
	assert.False(t, exists)
}

func TestManager_ResetAll(t *testing.T) {
	manager := NewManager(testDefaults())
	require.NoError(t, manager.SetValue("COW.WALK_SPEED", 55.0))
	require.NoError(t, manager.SetValue("ECONOMY.MILK_PRICE", 6.0))

	manager.ResetAll()
	assert.Empty(t, manager.Overrides())
}
