package storage

import (
	"context"

	"github.com/hollowfen/pasture/pkg/config"
	"github.com/hollowfen/pasture/pkg/game/types"
)

// SaveInfo is cheap save-slot metadata read without deserializing the
// full envelope.
type SaveInfo struct {
	Exists         bool
	SavedAt        int64
	Version        int
	PlayTimeMillis int64
}

// Store persists the save envelope and a small set of auxiliary keys to
// durable local storage.
type Store interface {
	Close(ctx context.Context) error
	// Save writes a new envelope with the current schema version and a
	// strictly increasing timestamp.
	Save(ctx context.Context, state *types.SavedGameState, overrides config.OverrideMap) (*SaveEnvelope, error)
	// Load reads the slot, migrating stale envelopes and dropping
	// config overrides the current schema does not recognize. Returns
	// ErrNotFound when no save exists.
	Load(ctx context.Context) (*SaveEnvelope, error)
	// Replace overwrites the slot with an envelope received from the
	// remote backend, preserving its timestamp.
	Replace(ctx context.Context, env *SaveEnvelope) error
	Exists(ctx context.Context) (bool, error)
	Delete(ctx context.Context) error
	Info(ctx context.Context) (*SaveInfo, error)

	// Auxiliary single-value keys (cached user id, refresh token).
	GetKey(ctx context.Context, key string) (string, error)
	SetKey(ctx context.Context, key string, value string) error
	DeleteKey(ctx context.Context, key string) error

	// Bounded most-recent-N history lists (console history/output).
	AppendHistory(ctx context.Context, key string, entry string, max int) error
	History(ctx context.Context, key string) ([]string, error)
}
