// internal/room/repository.go
package room

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists rooms and their seats. Implementations must treat the
// room code as unique among non-completed rooms.
type Repository interface {
	Insert(ctx context.Context, r *Room) error
	Update(ctx context.Context, r *Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*Room, error)
	GetByCode(ctx context.Context, code string) (*Room, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Room, error)
	// CodeInUse reports whether a non-completed room already holds the code.
	CodeInUse(ctx context.Context, code string) (bool, error)
}

// MemoryRepository keeps rooms in a mutex-guarded map.
type MemoryRepository struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rooms: make(map[uuid.UUID]*Room)}
}

// clone deep-copies a room so callers never share seat pointers with the map.
func clone(r *Room) *Room {
	out := *r
	out.Seats = make([]*Seat, len(r.Seats))
	for i, s := range r.Seats {
		seat := *s
		if s.UserID != nil {
			uid := *s.UserID
			seat.UserID = &uid
		}
		out.Seats[i] = &seat
	}
	return &out
}

func (m *MemoryRepository) Insert(_ context.Context, r *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[r.ID] = clone(r)
	return nil
}

func (m *MemoryRepository) Update(_ context.Context, r *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.ID]; !ok {
		return ErrRoomNotFound
	}
	m.rooms[r.ID] = clone(r)
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return clone(r), nil
}

func (m *MemoryRepository) GetByCode(_ context.Context, code string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = strings.ToUpper(code)
	for _, r := range m.rooms {
		if r.Code == code {
			return clone(r), nil
		}
	}
	return nil, ErrRoomNotFound
}

func (m *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
	return nil
}

func (m *MemoryRepository) List(_ context.Context) ([]*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, clone(r))
	}
	return out, nil
}

func (m *MemoryRepository) CodeInUse(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.Code == code && r.Status != StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

// touch is a shared helper for connection-tracking updates.
func touchSeat(s *Seat, connected bool, now time.Time) {
	s.Connected = connected
	s.LastSeen = now
}
