package billing

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mireilabs/velora/backend/internal/fault"
)

// MemoryLedger implements Ledger in process memory; used when no Redis is
// configured and in tests.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	holds    map[string]hold
}

type hold struct {
	userID string
	units  int64
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]int64),
		holds:    make(map[string]hold),
	}
}

// Topup credits a user's balance.
func (l *MemoryLedger) Topup(_ context.Context, userID string, units int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += units
	return nil
}

// Balance returns the user's current balance.
func (l *MemoryLedger) Balance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

// Reserve debits the balance and records a hold.
func (l *MemoryLedger) Reserve(_ context.Context, userID string, _ Feature, units int64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[userID] < units {
		return "", fault.ErrCreditDenied
	}

	id := uuid.NewString()
	l.balances[userID] -= units
	l.holds[id] = hold{userID: userID, units: units}
	return id, nil
}

// Commit drops the hold; the debit already happened.
func (l *MemoryLedger) Commit(_ context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.holds, reservationID)
	return nil
}

// Release refunds the hold onto the balance.
func (l *MemoryLedger) Release(_ context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holds[reservationID]
	if !ok {
		return nil
	}
	delete(l.holds, reservationID)
	l.balances[h.userID] += h.units
	return nil
}
