package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/infra/storage"
)

// BlockRepo implements storage.BlockRepository using PostgreSQL.
type BlockRepo struct {
	db *DB
}

// NewBlockRepo creates a new PostgreSQL block repository.
func NewBlockRepo(db *DB) *BlockRepo {
	return &BlockRepo{db: db}
}

// Save saves a block to the database.
func (r *BlockRepo) Save(ctx context.Context, block *domain.Block) error {
	query := `
		INSERT INTO blocks (block_height, block_hash, parent_hash, block_timestamp, header)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (block_height) DO UPDATE SET
			block_hash = EXCLUDED.block_hash,
			parent_hash = EXCLUDED.parent_hash,
			block_timestamp = EXCLUDED.block_timestamp,
			header = EXCLUDED.header
	`

	var header bytes.Buffer
	if err := block.Header.Serialize(&header); err != nil {
		return fmt.Errorf("failed to encode header of block %s: %w", block.Hash, err)
	}

	_, err := r.db.ExecContext(ctx, query,
		block.Height,
		block.Hash.String(),
		block.ParentHash.String(),
		block.Timestamp,
		header.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("failed to save block: %w", err)
	}
	return nil
}

type blockRow struct {
	Height     int32     `db:"block_height"`
	Hash       string    `db:"block_hash"`
	ParentHash string    `db:"parent_hash"`
	Timestamp  time.Time `db:"block_timestamp"`
	Header     []byte    `db:"header"`
}

func (b *blockRow) toDomain() (*domain.Block, error) {
	hash, err := chainhash.NewHashFromStr(b.Hash)
	if err != nil {
		return nil, fmt.Errorf("invalid block hash %q: %w", b.Hash, err)
	}
	parent, err := chainhash.NewHashFromStr(b.ParentHash)
	if err != nil {
		return nil, fmt.Errorf("invalid parent hash %q: %w", b.ParentHash, err)
	}
	var header wire.BlockHeader
	if err := header.Deserialize(bytes.NewReader(b.Header)); err != nil {
		return nil, fmt.Errorf("invalid header of block %s: %w", b.Hash, err)
	}
	return &domain.Block{
		Height:     b.Height,
		Hash:       *hash,
		ParentHash: *parent,
		Timestamp:  b.Timestamp.UTC(),
		Header:     header,
	}, nil
}

func (r *BlockRepo) getOne(ctx context.Context, query string, args ...any) (*domain.Block, error) {
	var row blockRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return row.toDomain()
}

// GetByHash retrieves a block by hash.
func (r *BlockRepo) GetByHash(ctx context.Context, hash chainhash.Hash) (*domain.Block, error) {
	query := `
		SELECT block_height, block_hash, parent_hash, block_timestamp, header
		FROM blocks
		WHERE block_hash = $1
	`
	return r.getOne(ctx, query, hash.String())
}

// GetByHeight retrieves a block by height.
func (r *BlockRepo) GetByHeight(ctx context.Context, height int32) (*domain.Block, error) {
	query := `
		SELECT block_height, block_hash, parent_hash, block_timestamp, header
		FROM blocks
		WHERE block_height = $1
	`
	return r.getOne(ctx, query, height)
}

// GetLatest retrieves the stored tip.
func (r *BlockRepo) GetLatest(ctx context.Context) (*domain.Block, error) {
	query := `
		SELECT block_height, block_hash, parent_hash, block_timestamp, header
		FROM blocks
		ORDER BY block_height DESC
		LIMIT 1
	`
	return r.getOne(ctx, query)
}

// Delete deletes a block.
func (r *BlockRepo) Delete(ctx context.Context, hash chainhash.Hash) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM blocks WHERE block_hash = $1`, hash.String())
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	return nil
}

// BlockHeight returns the height of a stored block.
func (r *BlockRepo) BlockHeight(ctx context.Context, hash chainhash.Hash) (int32, error) {
	var height int32
	err := r.db.GetContext(ctx, &height, `SELECT block_height FROM blocks WHERE block_hash = $1`, hash.String())
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", storage.ErrBlockNotFound, hash)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get block height: %w", err)
	}
	return height, nil
}

// Prune deletes blocks below a height except those anchoring watches.
func (r *BlockRepo) Prune(ctx context.Context, below int32, keep map[chainhash.Hash]struct{}) (int, error) {
	hashes := make([]string, 0, len(keep))
	for hash := range keep {
		hashes = append(hashes, hash.String())
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM blocks WHERE block_height < $1 AND NOT (block_hash = ANY($2))`,
		below, hashes,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune blocks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune blocks: %w", err)
	}
	return int(n), nil
}
