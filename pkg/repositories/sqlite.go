package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hollowfen/pasture/pkg/repositories/models"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS saves (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE,
	saved_at INTEGER NOT NULL,
	version INTEGER NOT NULL,
	game_state BLOB NOT NULL,
	config_overrides BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = &SQLiteRepository{}

func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, uid string) (*models.User, error) {
	q := `INSERT OR IGNORE INTO users (user_id, created_at) VALUES (?, ?);`
	if _, err := r.db.ExecContext(ctx, q, uid, time.Now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %v", err)
	}

	user := &models.User{}
	q = `SELECT user_id, created_at FROM users WHERE user_id = ?;`
	if err := r.db.QueryRowContext(ctx, q, uid).Scan(&user.UserID, &user.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan user: %v", err)
	}
	return user, nil
}

func (r *SQLiteRepository) GetSave(ctx context.Context, userID string) (*models.SaveRow, error) {
	row := &models.SaveRow{UserID: userID}
	q := `
	SELECT saved_at, version, game_state, config_overrides, created_at, updated_at
	FROM saves WHERE user_id = ?;
	`
	err := r.db.QueryRowContext(ctx, q, userID).Scan(
		&row.SavedAt, &row.Version, &row.GameState, &row.ConfigOverrides,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan save: %v", err)
	}
	return row, nil
}

func (r *SQLiteRepository) GetSaveInfo(ctx context.Context, userID string) (*models.SaveInfo, error) {
	info := &models.SaveInfo{}
	q := `SELECT saved_at, version FROM saves WHERE user_id = ?;`
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(&info.SavedAt, &info.Version); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan save info: %v", err)
	}
	return info, nil
}

func (r *SQLiteRepository) UpsertSave(ctx context.Context, row *models.SaveRow) error {
	now := time.Now().UnixMilli()
	q := `
	INSERT INTO saves (id, user_id, saved_at, version, game_state, config_overrides, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id) DO UPDATE SET
		saved_at = excluded.saved_at,
		version = excluded.version,
		game_state = excluded.game_state,
		config_overrides = excluded.config_overrides,
		updated_at = excluded.updated_at;
	`
	_, err := r.db.ExecContext(ctx, q,
		uuid.New().String(), row.UserID, row.SavedAt, row.Version,
		row.GameState, row.ConfigOverrides, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert save: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteSave(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM saves WHERE user_id = ?;`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete save: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if affected == 0 {
		return &ErrNotFound{}
	}
	return nil
}
