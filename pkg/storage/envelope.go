package storage

import (
	"encoding/json"
	"fmt"

	"github.com/hollowfen/pasture/pkg/config"
	"github.com/hollowfen/pasture/pkg/game/types"
)

// CurrentSaveVersion is the schema version written by this build.
const CurrentSaveVersion = 3

// SaveEnvelope is the versioned wrapper persisted to the local slot and
// mirrored to the remote backend.
type SaveEnvelope struct {
	// Version is the save schema version
	Version int `json:"version"`
	// SavedAt is the epoch-ms write time; strictly increases per write
	SavedAt int64 `json:"savedAt"`
	// GameState is the durable game state
	GameState *types.SavedGameState `json:"gameState"`
	// ConfigOverrides holds config values that differ from defaults
	ConfigOverrides config.OverrideMap `json:"configOverrides"`
}

// rawEnvelope is the schema-agnostic form used while migrating: the game
// state stays a generic tree so transforms can reshape it freely.
type rawEnvelope struct {
	Version         int                `json:"version"`
	SavedAt         int64              `json:"savedAt"`
	GameState       map[string]any     `json:"gameState"`
	ConfigOverrides config.OverrideMap `json:"configOverrides"`
}

func (r *rawEnvelope) toEnvelope() (*SaveEnvelope, error) {
	stateBytes, err := json.Marshal(r.GameState)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game state: %v", err)
	}
	gameState := types.NewSavedGameState()
	if err := json.Unmarshal(stateBytes, gameState); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game state: %v", err)
	}
	overrides := r.ConfigOverrides
	if overrides == nil {
		overrides = make(config.OverrideMap)
	}
	return &SaveEnvelope{
		Version:         r.Version,
		SavedAt:         r.SavedAt,
		GameState:       gameState,
		ConfigOverrides: overrides,
	}, nil
}
