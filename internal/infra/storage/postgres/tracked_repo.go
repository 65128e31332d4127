package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vietddude/blockwatch/internal/core/domain"
)

// TrackedTxRepo implements storage.TrackedTransactionRepository using PostgreSQL.
type TrackedTxRepo struct {
	db *DB
}

// NewTrackedTxRepo creates a new PostgreSQL tracked transaction repository.
func NewTrackedTxRepo(db *DB) *TrackedTxRepo {
	return &TrackedTxRepo{db: db}
}

type trackedRow struct {
	TxHash                string    `db:"tx_hash"`
	Reference             string    `db:"reference"`
	RequiredConfirmations int       `db:"required_confirmations"`
	CreatedAt             time.Time `db:"created_at"`
}

func (t *trackedRow) toDomain() (*domain.TrackedTransaction, error) {
	hash, err := chainhash.NewHashFromStr(t.TxHash)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hash %q: %w", t.TxHash, err)
	}
	return &domain.TrackedTransaction{
		TxHash:                *hash,
		Reference:             t.Reference,
		RequiredConfirmations: t.RequiredConfirmations,
		CreatedAt:             t.CreatedAt.UTC(),
	}, nil
}

// Save saves a request to the database.
func (r *TrackedTxRepo) Save(ctx context.Context, tx *domain.TrackedTransaction) error {
	query := `
		INSERT INTO tracked_transactions (tx_hash, reference, required_confirmations, created_at)
		VALUES (:tx_hash, :reference, :required_confirmations, :created_at)
		ON CONFLICT (tx_hash) DO UPDATE SET
			reference = EXCLUDED.reference,
			required_confirmations = EXCLUDED.required_confirmations
	`
	row := trackedRow{
		TxHash:                tx.TxHash.String(),
		Reference:             tx.Reference,
		RequiredConfirmations: tx.RequiredConfirmations,
		CreatedAt:             tx.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save tracked transaction: %w", err)
	}
	return nil
}

// GetByHash retrieves a request by transaction hash.
func (r *TrackedTxRepo) GetByHash(ctx context.Context, hash chainhash.Hash) (*domain.TrackedTransaction, error) {
	var row trackedRow
	err := r.db.GetContext(ctx, &row, `
		SELECT tx_hash, reference, required_confirmations, created_at
		FROM tracked_transactions
		WHERE tx_hash = $1
	`, hash.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked transaction: %w", err)
	}
	return row.toDomain()
}

// GetAll retrieves all requests, oldest first.
func (r *TrackedTxRepo) GetAll(ctx context.Context) ([]*domain.TrackedTransaction, error) {
	var rows []trackedRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT tx_hash, reference, required_confirmations, created_at
		FROM tracked_transactions
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked transactions: %w", err)
	}

	out := make([]*domain.TrackedTransaction, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Delete deletes a request.
func (r *TrackedTxRepo) Delete(ctx context.Context, hash chainhash.Hash) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tracked_transactions WHERE tx_hash = $1`, hash.String()); err != nil {
		return fmt.Errorf("failed to delete tracked transaction: %w", err)
	}
	return nil
}
