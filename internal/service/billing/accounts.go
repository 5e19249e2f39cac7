package billing

import "context"

// Accounts is the balance-maintenance side of a ledger backend. Both
// ledger implementations satisfy it.
type Accounts interface {
	Topup(ctx context.Context, userID string, units int64) error
	Balance(ctx context.Context, userID string) (int64, error)
}
