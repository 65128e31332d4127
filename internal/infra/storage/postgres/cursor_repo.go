package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/infra/storage"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

var _ storage.CursorRepository = (*CursorRepo)(nil)

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

type cursorRow struct {
	Name         string    `db:"name"`
	BlockHash    string    `db:"block_hash"`
	Height       int32     `db:"block_height"`
	EventType    int       `db:"event_type"`
	NextListener int       `db:"next_listener"`
	State        string    `db:"state"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (c *cursorRow) toDomain() (*domain.Cursor, error) {
	hash, err := chainhash.NewHashFromStr(c.BlockHash)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor block hash %q: %w", c.BlockHash, err)
	}
	return &domain.Cursor{
		Name:         c.Name,
		BlockHash:    *hash,
		Height:       c.Height,
		EventType:    domain.BlockEventType(c.EventType),
		NextListener: c.NextListener,
		State:        domain.CursorState(c.State),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}, nil
}

// Get retrieves a cursor by name.
func (r *CursorRepo) Get(ctx context.Context, name string) (*domain.Cursor, error) {
	var row cursorRow
	err := r.db.GetContext(ctx, &row, `
		SELECT name, block_hash, block_height, event_type, next_listener, state, updated_at
		FROM cursors
		WHERE name = $1
	`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return row.toDomain()
}

// Save creates or replaces a cursor.
func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	query := `
		INSERT INTO cursors (name, block_hash, block_height, event_type, next_listener, state, updated_at)
		VALUES (:name, :block_hash, :block_height, :event_type, :next_listener, :state, :updated_at)
		ON CONFLICT (name) DO UPDATE SET
			block_hash = EXCLUDED.block_hash,
			block_height = EXCLUDED.block_height,
			event_type = EXCLUDED.event_type,
			next_listener = EXCLUDED.next_listener,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`
	row := cursorRow{
		Name:         cursor.Name,
		BlockHash:    cursor.BlockHash.String(),
		Height:       cursor.Height,
		EventType:    int(cursor.EventType),
		NextListener: cursor.NextListener,
		State:        string(cursor.State),
		UpdatedAt:    cursor.UpdatedAt,
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}
