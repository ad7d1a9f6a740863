package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hollowfen/pasture/pkg/repositories/models"
	"github.com/jackc/pgx/v5"
)

type PostgresRepository struct {
	conn *pgx.Conn
}

var _ Repository = &PostgresRepository{}

// NewPostgresRepository connects to the database. The caller is
// responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) (*PostgresRepository, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	return &PostgresRepository{
		conn: conn,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) CreateUser(ctx context.Context, uid string) (*models.User, error) {
	q := `
	INSERT INTO users (user_id, created_at) VALUES ($1, $2)
	ON CONFLICT (user_id) DO NOTHING;
	`
	if _, err := r.conn.Exec(ctx, q, uid, time.Now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %v", err)
	}

	user := &models.User{}
	q = `SELECT user_id, created_at FROM users WHERE user_id = $1;`
	if err := r.conn.QueryRow(ctx, q, uid).Scan(&user.UserID, &user.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan user: %v", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetSave(ctx context.Context, userID string) (*models.SaveRow, error) {
	row := &models.SaveRow{UserID: userID}
	q := `
	SELECT saved_at, version, game_state, config_overrides, created_at, updated_at
	FROM saves WHERE user_id = $1;
	`
	err := r.conn.QueryRow(ctx, q, userID).Scan(
		&row.SavedAt, &row.Version, &row.GameState, &row.ConfigOverrides,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan save: %v", err)
	}
	return row, nil
}

func (r *PostgresRepository) GetSaveInfo(ctx context.Context, userID string) (*models.SaveInfo, error) {
	info := &models.SaveInfo{}
	q := `SELECT saved_at, version FROM saves WHERE user_id = $1;`
	if err := r.conn.QueryRow(ctx, q, userID).Scan(&info.SavedAt, &info.Version); err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan save info: %v", err)
	}
	return info, nil
}

func (r *PostgresRepository) UpsertSave(ctx context.Context, row *models.SaveRow) error {
	now := time.Now().UnixMilli()
	q := `
	INSERT INTO saves (id, user_id, saved_at, version, game_state, config_overrides, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	ON CONFLICT (user_id) DO UPDATE SET
		saved_at = $3, version = $4, game_state = $5, config_overrides = $6, updated_at = $7;
	`
	_, err := r.conn.Exec(ctx, q,
		uuid.New().String(), row.UserID, row.SavedAt, row.Version,
		row.GameState, row.ConfigOverrides, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert save: %v", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteSave(ctx context.Context, userID string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM saves WHERE user_id = $1;`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete save: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{}
	}
	return nil
}
