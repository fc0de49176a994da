// internal/state/postgres.go
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlorkit/parlor/internal/gamekit"
)

// PostgresRepository persists state rows in the game_states table. The
// compare-and-swap is a single-row UPDATE guarded by state_version; no row
// lock is held across the read-modify-write.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository wraps an existing pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec Stored) error {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	q := `
		INSERT INTO game_states (room_id, game_id, current_turn, state, state_version, etag, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, q,
		rec.RoomID, rec.GameID, rec.State.Turn.SeatOrNil(), stateJSON, rec.Version, rec.Etag, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrRoomStateExists
		}
		return fmt.Errorf("insert game state: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, roomID uuid.UUID) (Stored, error) {
	q := `
		SELECT room_id, game_id, state, state_version, etag, updated_at
		FROM game_states
		WHERE room_id = $1
	`
	var rec Stored
	var stateJSON []byte
	err := r.pool.QueryRow(ctx, q, roomID).Scan(
		&rec.RoomID, &rec.GameID, &stateJSON, &rec.Version, &rec.Etag, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stored{}, ErrRoomStateNotFound
	}
	if err != nil {
		return Stored{}, fmt.Errorf("get game state: %w", err)
	}
	var st gamekit.State
	if err := json.Unmarshal(stateJSON, &st); err != nil {
		return Stored{}, fmt.Errorf("decode game state: %w", err)
	}
	rec.State = st
	return rec, nil
}

func (r *PostgresRepository) CompareAndSwap(ctx context.Context, rec Stored, expectedVersion int64) error {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	q := `
		UPDATE game_states
		SET current_turn = $1, state = $2, state_version = $3, etag = $4, updated_at = $5
		WHERE room_id = $6 AND state_version = $7
	`
	tag, err := r.pool.Exec(ctx, q,
		rec.State.Turn.SeatOrNil(), stateJSON, rec.Version, rec.Etag, rec.UpdatedAt,
		rec.RoomID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update game state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or a concurrent writer won the version race.
		var exists bool
		if qerr := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM game_states WHERE room_id = $1)`, rec.RoomID).Scan(&exists); qerr != nil {
			return fmt.Errorf("check game state row: %w", qerr)
		}
		if !exists {
			return ErrRoomStateNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, roomID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM game_states WHERE room_id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("delete game state: %w", err)
	}
	return nil
}
