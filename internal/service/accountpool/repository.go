package accountpool

import (
	"context"

	"github.com/ignite/engagement-engine/internal/domain"
)

// Repository persists account state for the pool.
type Repository interface {
	// ListAccounts returns every account of the tenant, including banned ones.
	ListAccounts(ctx context.Context, tenantID string) ([]domain.Account, error)

	// SaveAccount upserts the full account row.
	SaveAccount(ctx context.Context, a *domain.Account) error
}
