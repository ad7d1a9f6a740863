package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hollowfen/pasture/pkg/clock"
	"github.com/hollowfen/pasture/pkg/config"
	"github.com/hollowfen/pasture/pkg/game/types"
	"github.com/hollowfen/pasture/pkg/log"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS save_slot (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL,
	saved_at INTEGER NOT NULL,
	play_time INTEGER NOT NULL,
	data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS app_keys (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

type SQLiteStore struct {
	db         *sql.DB
	defaults   map[string]any
	migrations []Migration
	clk        clock.Clock
}

var _ Store = &SQLiteStore{}

type NewSQLiteStoreOptions struct {
	// Path is the SQLite database file path.
	Path string
	// Defaults is the config schema authority used to validate loaded
	// overrides. Nil skips validation.
	Defaults map[string]any
	// Migrations defaults to DefaultMigrations.
	Migrations []Migration
	// Clock defaults to the system clock.
	Clock clock.Clock
}

func NewSQLiteStore(ctx context.Context, opts NewSQLiteStoreOptions) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	migrations := opts.Migrations
	if migrations == nil {
		migrations = DefaultMigrations()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &SQLiteStore{
		db:         db,
		defaults:   opts.Defaults,
		migrations: migrations,
		clk:        clk,
	}, nil
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, state *types.SavedGameState, overrides config.OverrideMap) (*SaveEnvelope, error) {
	savedAt := s.clk.Now().UnixMilli()

	var lastSavedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM save_slot WHERE id = 1;`).Scan(&lastSavedAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, &StorageError{Op: "save", Err: err}
	}
	if savedAt <= lastSavedAt {
		savedAt = lastSavedAt + 1
	}

	env := &SaveEnvelope{
		Version:         CurrentSaveVersion,
		SavedAt:         savedAt,
		GameState:       state.Copy(),
		ConfigOverrides: overrides.Copy(),
	}

	if err := s.write(ctx, env); err != nil {
		return nil, err
	}
	return env, nil
}

func (s *SQLiteStore) Replace(ctx context.Context, env *SaveEnvelope) error {
	return s.write(ctx, &SaveEnvelope{
		Version:         env.Version,
		SavedAt:         env.SavedAt,
		GameState:       env.GameState.Copy(),
		ConfigOverrides: env.ConfigOverrides.Copy(),
	})
}

func (s *SQLiteStore) write(ctx context.Context, env *SaveEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}

	q := `
	INSERT OR REPLACE INTO save_slot (id, version, saved_at, play_time, data)
	VALUES (1, ?, ?, ?, ?);
	`
	playTime := int64(0)
	if env.GameState != nil {
		playTime = env.GameState.PlayTimeMillis
	}
	if _, err := s.db.ExecContext(ctx, q, env.Version, env.SavedAt, playTime, data); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*SaveEnvelope, error) {
	var data []byte
	if err := s.db.QueryRowContext(ctx, `SELECT data FROM save_slot WHERE id = 1;`).Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, &StorageError{Op: "load", Err: err}
	}

	raw := &rawEnvelope{}
	if err := json.Unmarshal(data, raw); err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	if raw.GameState == nil {
		raw.GameState = make(map[string]any)
	}

	dirty := false
	if raw.Version < CurrentSaveVersion {
		migrated, err := runMigrations(s.migrations, raw, CurrentSaveVersion)
		if err != nil {
			return nil, &StorageError{Op: "migrate", Err: err}
		}
		dirty = dirty || migrated
	} else if raw.Version > CurrentSaveVersion {
		log.Warn("Save version %d is newer than supported version %d; loading as-is", raw.Version, CurrentSaveVersion)
	}

	if s.defaults != nil {
		for _, path := range config.ValidateOverrides(raw.ConfigOverrides, s.defaults) {
			log.Warn("Dropping save config override for unknown path %s", path)
			delete(raw.ConfigOverrides, path)
			dirty = true
		}
	}

	env, err := raw.toEnvelope()
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}

	if dirty {
		if err := s.write(ctx, env); err != nil {
			log.Warn("Failed to re-persist migrated save: %v", err)
		}
	}
	return env, nil
}

func (s *SQLiteStore) Exists(ctx context.Context) (bool, error) {
	info, err := s.Info(ctx)
	if err != nil {
		return false, err
	}
	return info.Exists, nil
}

func (s *SQLiteStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM save_slot WHERE id = 1;`); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Info(ctx context.Context) (*SaveInfo, error) {
	info := &SaveInfo{}
	q := `SELECT version, saved_at, play_time FROM save_slot WHERE id = 1;`
	if err := s.db.QueryRowContext(ctx, q).Scan(&info.Version, &info.SavedAt, &info.PlayTimeMillis); err != nil {
		if err == sql.ErrNoRows {
			return info, nil
		}
		return nil, &StorageError{Op: "info", Err: err}
	}
	info.Exists = true
	return info, nil
}

func (s *SQLiteStore) GetKey(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM app_keys WHERE key = ?;`, key).Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", &ErrNotFound{}
		}
		return "", &StorageError{Op: "get key", Err: err}
	}
	return value, nil
}

func (s *SQLiteStore) SetKey(ctx context.Context, key string, value string) error {
	q := `INSERT OR REPLACE INTO app_keys (key, value) VALUES (?, ?);`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return &StorageError{Op: "set key", Err: err}
	}
	return nil
}

func (s *SQLiteStore) DeleteKey(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM app_keys WHERE key = ?;`, key); err != nil {
		return &StorageError{Op: "delete key", Err: err}
	}
	return nil
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, key string, entry string, max int) error {
	entries, err := s.History(ctx, key)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	if max > 0 && len(entries) > max {
		entries = entries[len(entries)-max:]
	}
	value, err := json.Marshal(entries)
	if err != nil {
		return &StorageError{Op: "append history", Err: err}
	}
	return s.SetKey(ctx, key, string(value))
}

func (s *SQLiteStore) History(ctx context.Context, key string) ([]string, error) {
	value, err := s.GetKey(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []string
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		return nil, &StorageError{Op: "history", Err: err}
	}
	return entries, nil
}
