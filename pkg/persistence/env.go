package persistence

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env is the client-side environment configuration.
type Env struct {
	// SavePath is the local save database file.
	SavePath string `env:"PASTURE_SAVE_PATH" envDefault:"pasture.db"`
	// SyncURL is the save backend root URL. Empty disables sync.
	SyncURL string `env:"PASTURE_SYNC_URL"`
	// FirebaseAPIKey is the Firebase web API key. Empty disables auth
	// and therefore sync.
	FirebaseAPIKey string `env:"PASTURE_FIREBASE_API_KEY"`
	// AutosaveInterval is the periodic autosave cadence.
	AutosaveInterval time.Duration `env:"PASTURE_AUTOSAVE_INTERVAL" envDefault:"30s"`
	// MinSaveInterval debounces requested saves.
	MinSaveInterval time.Duration `env:"PASTURE_MIN_SAVE_INTERVAL" envDefault:"5s"`
	// SyncInterval is the periodic background sync cadence.
	SyncInterval time.Duration `env:"PASTURE_SYNC_INTERVAL" envDefault:"5m"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"PASTURE_LOG_LEVEL" envDefault:"info"`
}

func LoadEnv() (*Env, error) {
	cfg := &Env{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %v", err)
	}
	return cfg, nil
}
