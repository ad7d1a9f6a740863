package models

// User is a backend user row keyed by the verified auth UID.
type User struct {
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"created_at"`
}

// SaveRow is the single cloud save row per user. The game state and
// config overrides are opaque blobs: the backend never inspects them.
type SaveRow struct {
	UserID          string `json:"user_id"`
	SavedAt         int64  `json:"saved_at"`
	Version         int    `json:"version"`
	GameState       []byte `json:"game_state"`
	ConfigOverrides []byte `json:"config_overrides"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
}

// SaveInfo is the cheap metadata view of a save row.
type SaveInfo struct {
	SavedAt int64 `json:"saved_at"`
	Version int   `json:"version"`
}
