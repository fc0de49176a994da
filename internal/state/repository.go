// internal/state/repository.go
package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parlorkit/parlor/internal/gamekit"
)

// Stored is one persisted version of a room's game. Version is the CAS
// token: a strictly monotonic counter the storage layer compares on every
// write. Etag is the opaque wire token clients poll with; it changes on
// every write but is never compared by storage.
type Stored struct {
	RoomID    uuid.UUID     `json:"room_id"`
	GameID    string        `json:"game_id"`
	State     gamekit.State `json:"state"`
	Version   int64         `json:"state_version"`
	Etag      string        `json:"etag"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ErrRoomStateNotFound indicates no state row exists for the room.
var ErrRoomStateNotFound = errors.New("room state not found")

// ErrVersionConflict is returned by a repository when the compare-and-swap
// version did not match the stored row. The store translates it into a
// StaleStateError carrying the current etag.
var ErrVersionConflict = errors.New("state version conflict")

// ErrRoomStateExists indicates a duplicate create for the room.
var ErrRoomStateExists = errors.New("room state already exists")

// Repository persists one state row per room. CompareAndSwap must be atomic
// with respect to concurrent writers: the row is replaced only if its stored
// version equals expectedVersion.
type Repository interface {
	Insert(ctx context.Context, rec Stored) error
	Get(ctx context.Context, roomID uuid.UUID) (Stored, error)
	CompareAndSwap(ctx context.Context, rec Stored, expectedVersion int64) error
	Delete(ctx context.Context, roomID uuid.UUID) error
}

// MemoryRepository keeps state rows in a mutex-guarded map.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]Stored
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[uuid.UUID]Stored)}
}

func (r *MemoryRepository) Insert(_ context.Context, rec Stored) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[rec.RoomID]; exists {
		return ErrRoomStateExists
	}
	r.rows[rec.RoomID] = rec
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, roomID uuid.UUID) (Stored, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[roomID]
	if !ok {
		return Stored{}, ErrRoomStateNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) CompareAndSwap(_ context.Context, rec Stored, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[rec.RoomID]
	if !ok {
		return ErrRoomStateNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	r.rows[rec.RoomID] = rec
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, roomID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, roomID)
	return nil
}
