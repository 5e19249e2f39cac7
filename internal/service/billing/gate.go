// Package billing guards every paid external call behind a two-phase
// credit reservation: reserve before the call, then commit on success or
// release on failure. The ledger itself is an external collaborator; the
// gate only enforces the protocol around it.
package billing

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mireilabs/velora/backend/internal/config"
)

// Feature identifies a billable feature kind.
type Feature string

const (
	FeatureText  Feature = "text"
	FeatureVoice Feature = "voice"
)

// Ledger is the external credit ledger contract.
type Ledger interface {
	// Reserve places a hold of units against the user's balance and
	// returns a reservation id, or fault.ErrCreditDenied.
	Reserve(ctx context.Context, userID string, feature Feature, units int64) (string, error)
	// Commit finalizes a reservation; the held credits are spent.
	Commit(ctx context.Context, reservationID string) error
	// Release refunds a reservation in full.
	Release(ctx context.Context, reservationID string) error
}

// Gate prices features and issues scoped reservations.
type Gate struct {
	ledger  Ledger
	costs   config.BillingConfig
	timeout time.Duration
}

// NewGate builds a credit gate over the given ledger.
func NewGate(ledger Ledger, costs config.BillingConfig) *Gate {
	timeout := costs.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gate{ledger: ledger, costs: costs, timeout: timeout}
}

// Cost returns the configured unit cost of a feature.
func (g *Gate) Cost(feature Feature) int64 {
	switch feature {
	case FeatureVoice:
		return g.costs.VoiceCost
	default:
		return g.costs.TextCost
	}
}

// Reserve places a hold for one use of feature. It must be called before
// the external call it guards; on fault.ErrCreditDenied the caller makes no
// external call at all.
func (g *Gate) Reserve(ctx context.Context, userID string, feature Feature) (*Reservation, error) {
	units := g.Cost(feature)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	id, err := g.ledger.Reserve(ctx, userID, feature, units)
	if err != nil {
		return nil, fmt.Errorf("reserve %s x%d for user %s: %w", feature, units, userID, err)
	}

	return &Reservation{gate: g, id: id, units: units, feature: feature}, nil
}

// Reservation is a provisional hold that resolves exactly once, to either
// commit or release. Resolve guards make double resolution a no-op so every
// exit path of a turn (success, failure, panic, disconnect) can call one of
// them defensively.
type Reservation struct {
	gate    *Gate
	id      string
	units   int64
	feature Feature

	mu       sync.Mutex
	resolved bool
}

// Units reports the held credit amount.
func (r *Reservation) Units() int64 { return r.units }

// Commit spends the held credits. Only the first resolution wins.
func (r *Reservation) Commit(ctx context.Context) error {
	if !r.begin() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.gate.timeout)
	defer cancel()
	if err := r.gate.ledger.Commit(ctx, r.id); err != nil {
		return fmt.Errorf("commit reservation %s: %w", r.id, err)
	}
	return nil
}

// Release refunds the held credits. Only the first resolution wins.
func (r *Reservation) Release(ctx context.Context) error {
	if !r.begin() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.gate.timeout)
	defer cancel()
	if err := r.gate.ledger.Release(ctx, r.id); err != nil {
		return fmt.Errorf("release reservation %s: %w", r.id, err)
	}
	return nil
}

// MustRelease releases and logs instead of returning the error; used on
// defer paths where nothing can act on the failure.
func (r *Reservation) MustRelease(ctx context.Context) {
	if err := r.Release(ctx); err != nil {
		log.Printf("[billing] release failed reservation=%s: %v", r.id, err)
	}
}

func (r *Reservation) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return false
	}
	r.resolved = true
	return true
}
