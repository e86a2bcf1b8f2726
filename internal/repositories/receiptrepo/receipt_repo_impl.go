package receiptrepo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zemetsskiy/subgate/internal/domain"
	"github.com/zemetsskiy/subgate/internal/infrastructure/database"
)

type receiptRepositoryImpl struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *database.DBManager, logger zerolog.Logger) IReceiptRepository {
	return &receiptRepositoryImpl{
		db:     db.Db,
		logger: logger,
	}
}

func (r *receiptRepositoryImpl) Create(ctx context.Context, receipt domain.Receipt) error {
	const query = `
		INSERT INTO receipts (id, wallet_address, plan, token, network, amount, username, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		receipt.ID,
		receipt.WalletAddress,
		receipt.Plan,
		string(receipt.Token),
		string(receipt.Network),
		receipt.Amount.String(),
		receipt.Username,
		receipt.ConfirmedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).
			Str("wallet_address", receipt.WalletAddress).
			Msg("Failed to insert receipt")
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

func (r *receiptRepositoryImpl) ListByUsername(ctx context.Context, username string, limit, offset int) ([]domain.Receipt, error) {
	const query = `
		SELECT id, wallet_address, plan, token, network, amount, username, confirmed_at
		FROM receipts
		WHERE username = $1
		ORDER BY confirmed_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, username, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []domain.Receipt
	for rows.Next() {
		var (
			receipt domain.Receipt
			token   string
			network string
			amount  string
		)
		if err := rows.Scan(
			&receipt.ID,
			&receipt.WalletAddress,
			&receipt.Plan,
			&token,
			&network,
			&amount,
			&receipt.Username,
			&receipt.ConfirmedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipt.Token = domain.Token(token)
		receipt.Network = domain.Network(network)
		receipt.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt receipt amount %q: %w", amount, err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}
