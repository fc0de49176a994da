// internal/room/postgres.go
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlorkit/parlor/internal/gamekit"
)

// PostgresRepository persists rooms in the rooms and room_seats tables.
// Updates rewrite the seat rows in one transaction; rooms are low-contention
// so last-writer-wins is acceptable here, unlike game state.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository wraps an existing pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Insert(ctx context.Context, rm *Room) error {
	settings, err := json.Marshal(rm.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO rooms (id, room_code, game_id, status, settings, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.Exec(ctx, q, rm.ID, rm.Code, rm.GameID, rm.Status, settings, rm.CreatedAt, rm.ExpiresAt); err != nil {
			return err
		}
		return insertSeats(ctx, tx, rm)
	})
}

func insertSeats(ctx context.Context, tx pgx.Tx, rm *Room) error {
	q := `
		INSERT INTO room_seats
			(room_id, seat_position, user_id, guest_token, client_id, is_ai, ai_difficulty, display_name, connected, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, s := range rm.Seats {
		_, err := tx.Exec(ctx, q,
			rm.ID, s.Position, s.UserID, s.GuestToken, s.ClientID,
			s.IsAI, string(s.AIDifficulty), s.DisplayName, s.Connected, s.LastSeen)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, rm *Room) error {
	settings, err := json.Marshal(rm.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE rooms
			SET status = $1, settings = $2, expires_at = $3
			WHERE id = $4
		`
		tag, err := tx.Exec(ctx, q, rm.Status, settings, rm.ExpiresAt, rm.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrRoomNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM room_seats WHERE room_id = $1`, rm.ID); err != nil {
			return err
		}
		return insertSeats(ctx, tx, rm)
	})
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (*Room, error) {
	return r.get(ctx, `WHERE room_code = $1`, strings.ToUpper(code))
}

func (r *PostgresRepository) get(ctx context.Context, where string, arg interface{}) (*Room, error) {
	q := `
		SELECT id, room_code, game_id, status, settings, created_at, expires_at
		FROM rooms ` + where
	var rm Room
	var settings []byte
	err := r.pool.QueryRow(ctx, q, arg).Scan(
		&rm.ID, &rm.Code, &rm.GameID, &rm.Status, &settings, &rm.CreatedAt, &rm.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &rm.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	if err := r.loadSeats(ctx, &rm); err != nil {
		return nil, err
	}
	return &rm, nil
}

func (r *PostgresRepository) loadSeats(ctx context.Context, rm *Room) error {
	q := `
		SELECT seat_position, user_id, guest_token, client_id, is_ai, ai_difficulty, display_name, connected, last_seen
		FROM room_seats
		WHERE room_id = $1
		ORDER BY seat_position
	`
	rows, err := r.pool.Query(ctx, q, rm.ID)
	if err != nil {
		return fmt.Errorf("load seats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s Seat
		var difficulty string
		if err := rows.Scan(&s.Position, &s.UserID, &s.GuestToken, &s.ClientID, &s.IsAI, &difficulty, &s.DisplayName, &s.Connected, &s.LastSeen); err != nil {
			return fmt.Errorf("scan seat: %w", err)
		}
		s.AIDifficulty = gamekit.Difficulty(difficulty)
		rm.Seats = append(rm.Seats, &s)
	}
	return rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM room_seats WHERE room_id = $1`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
		return err
	})
}

func (r *PostgresRepository) List(ctx context.Context) ([]*Room, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM rooms`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*Room, 0, len(ids))
	for _, id := range ids {
		rm, err := r.GetByID(ctx, id)
		if errors.Is(err, ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, nil
}

func (r *PostgresRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS(SELECT 1 FROM rooms WHERE room_code = $1 AND status <> 'completed')`
	if err := r.pool.QueryRow(ctx, q, strings.ToUpper(code)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check room code: %w", err)
	}
	return exists, nil
}
