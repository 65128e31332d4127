package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/core/watching"
)

// All watch kinds share the watches table; rows are told apart by kind and
// listed in insertion order (seq).
type watchRow struct {
	ID         uuid.UUID           `db:"id"`
	Kind       string              `db:"kind"`
	Context    string              `db:"context"`
	StartBlock string              `db:"start_block"`
	StartTime  time.Time           `db:"start_time"`
	TxHash     string              `db:"tx_hash"`
	Address    sql.NullString      `db:"address"`
	Amount     decimal.NullDecimal `db:"amount"`
}

type watchTable struct {
	db   *DB
	kind string
}

func (t watchTable) list(ctx context.Context) ([]watchRow, error) {
	var rows []watchRow
	err := t.db.SelectContext(ctx, &rows, `
		SELECT id, kind, context, start_block, start_time, tx_hash, address, amount
		FROM watches
		WHERE kind = $1
		ORDER BY seq
	`, t.kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s watches: %w", t.kind, err)
	}
	return rows, nil
}

func (t watchTable) insert(ctx context.Context, rows []watchRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO watches (id, kind, context, start_block, start_time, tx_hash, address, amount)
		VALUES (:id, :kind, :context, :start_block, :start_time, :tx_hash, :address, :amount)
	`
	if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("failed to insert %d %s watches: %w", len(rows), t.kind, err)
	}
	return tx.Commit()
}

func (t watchTable) remove(ctx context.Context, id uuid.UUID) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM watches WHERE id = $1 AND kind = $2`, id, t.kind)
	if err != nil {
		return fmt.Errorf("failed to remove %s watch %s: %w", t.kind, id, err)
	}
	return nil
}

func (t watchTable) count(ctx context.Context) (int, error) {
	var n int
	if err := t.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM watches WHERE kind = $1`, t.kind); err != nil {
		return 0, fmt.Errorf("failed to count %s watches: %w", t.kind, err)
	}
	return n, nil
}

func encodeHeader[C any](kind string, w domain.Watch[C]) (watchRow, error) {
	raw, err := json.Marshal(w.Context)
	if err != nil {
		return watchRow{}, fmt.Errorf("failed to encode context of watch %s: %w", w.ID, err)
	}
	return watchRow{
		ID:         w.ID,
		Kind:       kind,
		Context:    string(raw),
		StartBlock: w.StartBlock.String(),
		StartTime:  w.StartTime,
	}, nil
}

func decodeHeader[C any](row *watchRow) (domain.Watch[C], error) {
	var c C
	if err := json.Unmarshal([]byte(row.Context), &c); err != nil {
		return domain.Watch[C]{}, fmt.Errorf("failed to decode context of watch %s: %w", row.ID, err)
	}
	start, err := chainhash.NewHashFromStr(row.StartBlock)
	if err != nil {
		return domain.Watch[C]{}, fmt.Errorf("invalid start block of watch %s: %w", row.ID, err)
	}
	return domain.Watch[C]{
		ID:         row.ID,
		Context:    c,
		StartBlock: *start,
		StartTime:  row.StartTime.UTC(),
	}, nil
}

// TransactionWatchRepo implements storage.WatchRepository for transaction
// watches. Contexts are stored as JSON.
type TransactionWatchRepo[C any] struct {
	table watchTable
}

// NewTransactionWatchRepo creates a new PostgreSQL transaction watch repository.
func NewTransactionWatchRepo[C any](db *DB) *TransactionWatchRepo[C] {
	return &TransactionWatchRepo[C]{table: watchTable{db: db, kind: watching.KindTransaction}}
}

// List returns all active transaction watches.
func (r *TransactionWatchRepo[C]) List(ctx context.Context) ([]domain.TransactionWatch[C], error) {
	rows, err := r.table.list(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.TransactionWatch[C], 0, len(rows))
	for i := range rows {
		header, err := decodeHeader[C](&rows[i])
		if err != nil {
			return nil, err
		}
		tx, err := chainhash.NewHashFromStr(rows[i].TxHash)
		if err != nil {
			return nil, fmt.Errorf("invalid tx hash of watch %s: %w", rows[i].ID, err)
		}
		out = append(out, domain.TransactionWatch[C]{Watch: header, TransactionID: *tx})
	}
	return out, nil
}

// AddBatch saves watches in one database transaction.
func (r *TransactionWatchRepo[C]) AddBatch(ctx context.Context, watches []domain.TransactionWatch[C]) error {
	rows := make([]watchRow, 0, len(watches))
	for _, w := range watches {
		row, err := encodeHeader(r.table.kind, w.Watch)
		if err != nil {
			return err
		}
		row.TxHash = w.TransactionID.String()
		rows = append(rows, row)
	}
	return r.table.insert(ctx, rows)
}

// Remove deletes a watch.
func (r *TransactionWatchRepo[C]) Remove(ctx context.Context, id uuid.UUID) error {
	return r.table.remove(ctx, id)
}

// Count returns the number of active transaction watches.
func (r *TransactionWatchRepo[C]) Count(ctx context.Context) (int, error) {
	return r.table.count(ctx)
}

// BalanceWatchRepo implements storage.WatchRepository for balance watches
// carrying decimal amounts.
type BalanceWatchRepo[C any] struct {
	table watchTable
}

// NewBalanceWatchRepo creates a new PostgreSQL balance watch repository.
func NewBalanceWatchRepo[C any](db *DB) *BalanceWatchRepo[C] {
	return &BalanceWatchRepo[C]{table: watchTable{db: db, kind: watching.KindBalance}}
}

// List returns all active balance watches.
func (r *BalanceWatchRepo[C]) List(ctx context.Context) ([]domain.BalanceWatch[C, decimal.Decimal], error) {
	rows, err := r.table.list(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.BalanceWatch[C, decimal.Decimal], 0, len(rows))
	for i := range rows {
		header, err := decodeHeader[C](&rows[i])
		if err != nil {
			return nil, err
		}
		tx, err := chainhash.NewHashFromStr(rows[i].TxHash)
		if err != nil {
			return nil, fmt.Errorf("invalid tx hash of watch %s: %w", rows[i].ID, err)
		}
		out = append(out, domain.BalanceWatch[C, decimal.Decimal]{
			Watch:         header,
			Transaction:   *tx,
			Address:       rows[i].Address.String,
			BalanceChange: rows[i].Amount.Decimal,
		})
	}
	return out, nil
}

// AddBatch saves watches in one database transaction.
func (r *BalanceWatchRepo[C]) AddBatch(ctx context.Context, watches []domain.BalanceWatch[C, decimal.Decimal]) error {
	rows := make([]watchRow, 0, len(watches))
	for _, w := range watches {
		row, err := encodeHeader(r.table.kind, w.Watch)
		if err != nil {
			return err
		}
		row.TxHash = w.Transaction.String()
		row.Address = sql.NullString{String: w.Address, Valid: true}
		row.Amount = decimal.NullDecimal{Decimal: w.BalanceChange, Valid: true}
		rows = append(rows, row)
	}
	return r.table.insert(ctx, rows)
}

// Remove deletes a watch.
func (r *BalanceWatchRepo[C]) Remove(ctx context.Context, id uuid.UUID) error {
	return r.table.remove(ctx, id)
}

// Count returns the number of active balance watches.
func (r *BalanceWatchRepo[C]) Count(ctx context.Context) (int, error) {
	return r.table.count(ctx)
}
