package receiptrepo

import (
	"context"

	"github.com/zemetsskiy/subgate/internal/domain"
)

// IReceiptRepository archives confirmed payments. The archive is an audit
// trail, not part of the confirmation path: writes are best effort.
type IReceiptRepository interface {
	Create(ctx context.Context, receipt domain.Receipt) error
	ListByUsername(ctx context.Context, username string, limit, offset int) ([]domain.Receipt, error)
}
