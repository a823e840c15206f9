package device

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// UpdateFunc mutates a record inside an atomic read-modify-write.
// Returning an error aborts the update and leaves the stored record intact.
// It may run more than once if the backend retries a conflicting write.
type UpdateFunc func(r *Record) error

// Store is the durable device record store.
//
// All methods return copies; callers may mutate them freely. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get returns the record for id, or an error matching ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns all records ordered by creation time.
	List(ctx context.Context) ([]*Record, error)

	// Create inserts a new record. The id must not exist yet.
	Create(ctx context.Context, r *Record) error

	// Update atomically reads the record, applies fn, stamps UpdatedAt and
	// writes it back. It returns the stored result.
	Update(ctx context.Context, id string, fn UpdateFunc) (*Record, error)

	// Delete removes the record, or returns an error matching ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Close releases resources held by the store.
	Close() error
}

// applyUpdate runs fn on a copy of cur and enforces the immutable fields.
func applyUpdate(cur *Record, fn UpdateFunc) (*Record, error) {
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now()
	return next, nil
}

func sortRecords(rs []*Record) {
	slices.SortFunc(rs, func(a, b *Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Memory is an in-memory Store for tests and ephemeral deployments.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

// Get returns a copy of the record for id.
func (m *Memory) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, Wrap(ReasonNotFound, id, nil)
	}
	return r.Clone(), nil
}

// List returns copies of all records ordered by creation time.
func (m *Memory) List(_ context.Context) ([]*Record, error) {
	m.mu.RLock()
	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	m.mu.RUnlock()
	sortRecords(out)
	return out, nil
}

// Create stores a copy of r.
func (m *Memory) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.ID]; ok {
		return Errorf(ReasonValidationFailed, r.ID, "id already exists")
	}
	m.records[r.ID] = r.Clone()
	return nil
}

// Update applies fn to a copy of the record under the store lock.
func (m *Memory) Update(_ context.Context, id string, fn UpdateFunc) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[id]
	if !ok {
		return nil, Wrap(ReasonNotFound, id, nil)
	}
	next, err := applyUpdate(cur, fn)
	if err != nil {
		return nil, err
	}
	m.records[id] = next
	return next.Clone(), nil
}

// Delete removes the record for id.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return Wrap(ReasonNotFound, id, nil)
	}
	delete(m.records, id)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
