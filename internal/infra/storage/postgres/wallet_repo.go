package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/blockwatch/internal/core/domain"
)

// WalletRepo implements storage.WalletRepository using PostgreSQL.
type WalletRepo struct {
	db *DB
}

// NewWalletRepo creates a new PostgreSQL wallet repository.
func NewWalletRepo(db *DB) *WalletRepo {
	return &WalletRepo{db: db}
}

type walletRow struct {
	Address               string    `db:"address"`
	Reference             string    `db:"reference"`
	RequiredConfirmations int       `db:"required_confirmations"`
	CreatedAt             time.Time `db:"created_at"`
}

func (w *walletRow) toDomain() *domain.WalletAddress {
	return &domain.WalletAddress{
		Address:               w.Address,
		Reference:             w.Reference,
		RequiredConfirmations: w.RequiredConfirmations,
		CreatedAt:             w.CreatedAt.UTC(),
	}
}

// Save saves a wallet address to the database.
func (r *WalletRepo) Save(ctx context.Context, wallet *domain.WalletAddress) error {
	query := `
		INSERT INTO wallet_addresses (address, reference, required_confirmations, created_at)
		VALUES (:address, :reference, :required_confirmations, :created_at)
		ON CONFLICT (address) DO UPDATE SET
			reference = EXCLUDED.reference,
			required_confirmations = EXCLUDED.required_confirmations
	`
	row := walletRow{
		Address:               wallet.Address,
		Reference:             wallet.Reference,
		RequiredConfirmations: wallet.RequiredConfirmations,
		CreatedAt:             wallet.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save wallet address: %w", err)
	}
	return nil
}

// GetByAddress retrieves a wallet by address.
func (r *WalletRepo) GetByAddress(ctx context.Context, address string) (*domain.WalletAddress, error) {
	var row walletRow
	err := r.db.GetContext(ctx, &row, `
		SELECT address, reference, required_confirmations, created_at
		FROM wallet_addresses
		WHERE address = $1
	`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet address: %w", err)
	}
	return row.toDomain(), nil
}

// GetAll retrieves all wallet addresses.
func (r *WalletRepo) GetAll(ctx context.Context) ([]*domain.WalletAddress, error) {
	var rows []walletRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT address, reference, required_confirmations, created_at
		FROM wallet_addresses
		ORDER BY address
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all wallet addresses: %w", err)
	}

	wallets := make([]*domain.WalletAddress, 0, len(rows))
	for i := range rows {
		wallets = append(wallets, rows[i].toDomain())
	}
	return wallets, nil
}

// Delete stops monitoring an address.
func (r *WalletRepo) Delete(ctx context.Context, address string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM wallet_addresses WHERE address = $1`, address); err != nil {
		return fmt.Errorf("failed to delete wallet address: %w", err)
	}
	return nil
}
