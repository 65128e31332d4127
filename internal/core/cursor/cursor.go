// Package cursor persists how far block events have been delivered.
//
// The synchronizer hands each block event to its listeners in order. The
// cursor records the event and the first listener that has not accepted it,
// so a listener failure or a restart resumes delivery at that listener
// instead of skipping the event.
//
//	m := cursor.NewManager(repo, "mainnet")
//
//	start, _ := m.Begin(ctx, hash, height, domain.BlockAdded, len(listeners))
//	for i := start; i < len(listeners); i++ {
//	    // deliver to listeners[i], then
//	    m.Advance(ctx, i+1)
//	}
//	m.Complete(ctx)
package cursor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/indexing/metrics"
	"github.com/vietddude/blockwatch/internal/infra/storage"
)

// Manager reads and moves one named cursor. Writes go to the repository
// before the cached copy changes.
type Manager struct {
	repo storage.CursorRepository
	name string

	mu      sync.Mutex
	loaded  bool
	current *domain.Cursor
}

// NewManager creates a manager for the cursor called name.
func NewManager(repo storage.CursorRepository, name string) *Manager {
	return &Manager{repo: repo, name: name}
}

// Name returns the cursor name.
func (m *Manager) Name() string {
	return m.name
}

// Get returns a copy of the cursor, or nil before the first event.
func (m *Manager) Get(ctx context.Context) (*domain.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.load(ctx)
	if err != nil || cur == nil {
		return nil, err
	}
	cp := *cur
	return &cp, nil
}

func (m *Manager) load(ctx context.Context) (*domain.Cursor, error) {
	if m.loaded {
		return m.current, nil
	}
	cur, err := m.repo.Get(ctx, m.name)
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	m.current, m.loaded = cur, true
	return cur, nil
}

// Begin points the cursor at an event and returns the index of the first
// listener still owed it. An event the cursor already points at resumes
// where it stopped; a fully delivered one returns listeners.
func (m *Manager) Begin(
	ctx context.Context,
	hash chainhash.Hash,
	height int32,
	eventType domain.BlockEventType,
	listeners int,
) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.load(ctx)
	if err != nil {
		return 0, err
	}
	if cur.Is(hash, eventType) {
		if cur.State == domain.CursorStateDelivered {
			return listeners, nil
		}
		return min(cur.NextListener, listeners), nil
	}

	next := &domain.Cursor{
		Name:      m.name,
		BlockHash: hash,
		Height:    height,
		EventType: eventType,
		State:     domain.CursorStateDelivering,
	}
	return 0, m.save(ctx, next)
}

// Advance records that every listener before next accepted the event.
func (m *Manager) Advance(ctx context.Context, next int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return fmt.Errorf("cursor %s has no event", m.name)
	}
	cur := *m.current
	cur.NextListener = next
	return m.save(ctx, &cur)
}

// Complete marks the event delivered to every listener.
func (m *Manager) Complete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return fmt.Errorf("cursor %s has no event", m.name)
	}
	if m.current.State == domain.CursorStateDelivered {
		return nil
	}
	cur := *m.current
	cur.State = domain.CursorStateDelivered
	if err := m.save(ctx, &cur); err != nil {
		return err
	}
	metrics.CursorHeight.Set(float64(cur.Height))
	return nil
}

func (m *Manager) save(ctx context.Context, cur *domain.Cursor) error {
	cur.UpdatedAt = time.Now().UTC()
	if err := m.repo.Save(ctx, cur); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	m.current, m.loaded = cur, true
	return nil
}
