package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mireilabs/velora/backend/internal/fault"
)

// Key layout: velora:credits:{userID} holds the balance,
// velora:hold:{reservationID} holds "units:userID:feature" for a pending
// reservation.
const (
	balanceKeyFmt = "velora:credits:%s"
	holdKeyFmt    = "velora:hold:%s"

	// Holds expire on their own so a crashed process cannot strand
	// credits forever; the refund then happens out of band.
	holdTTLSeconds = 600
)

// reserveScript atomically checks the balance, debits it and records the
// hold. Returns -1 when the balance is insufficient.
var reserveScript = redis.NewScript(`
local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
local units = tonumber(ARGV[1])
if balance < units then
  return -1
end
redis.call('DECRBY', KEYS[1], units)
redis.call('SET', KEYS[2], ARGV[2], 'EX', tonumber(ARGV[3]))
return balance - units
`)

// releaseScript refunds a hold exactly once: the DEL decides the winner.
var releaseScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 1 then
  redis.call('INCRBY', KEYS[2], tonumber(ARGV[1]))
  return 1
end
return 0
`)

// RedisLedger implements Ledger on a shared Redis instance. The debit
// happens at reserve time; commit just drops the hold record while release
// refunds it.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger wraps an opened go-redis client.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

// Reserve debits the user's balance and records a hold.
func (l *RedisLedger) Reserve(ctx context.Context, userID string, feature Feature, units int64) (string, error) {
	id := uuid.NewString()
	holdValue := fmt.Sprintf("%d:%s:%s", units, userID, feature)

	res, err := reserveScript.Run(ctx, l.client,
		[]string{fmt.Sprintf(balanceKeyFmt, userID), fmt.Sprintf(holdKeyFmt, id)},
		units, holdValue, holdTTLSeconds,
	).Int64()
	if err != nil {
		return "", fmt.Errorf("ledger reserve: %w", err)
	}
	if res < 0 {
		return "", fault.ErrCreditDenied
	}
	return id, nil
}

// Commit finalizes the reservation; the debit already happened at reserve
// time, so committing only drops the hold record.
func (l *RedisLedger) Commit(ctx context.Context, reservationID string) error {
	if err := l.client.Del(ctx, fmt.Sprintf(holdKeyFmt, reservationID)).Err(); err != nil {
		return fmt.Errorf("ledger commit: %w", err)
	}
	return nil
}

// Release refunds the reservation onto the user's balance. Releasing an
// already-resolved or expired hold is a no-op.
func (l *RedisLedger) Release(ctx context.Context, reservationID string) error {
	holdKey := fmt.Sprintf(holdKeyFmt, reservationID)

	hold, err := l.client.Get(ctx, holdKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger release: %w", err)
	}

	units, userID, err := parseHold(hold)
	if err != nil {
		return fmt.Errorf("ledger release: %w", err)
	}

	if err := releaseScript.Run(ctx, l.client,
		[]string{holdKey, fmt.Sprintf(balanceKeyFmt, userID)},
		units,
	).Err(); err != nil {
		return fmt.Errorf("ledger release: %w", err)
	}
	return nil
}

// Topup credits a user's balance; used by operational tooling and tests.
func (l *RedisLedger) Topup(ctx context.Context, userID string, units int64) error {
	return l.client.IncrBy(ctx, fmt.Sprintf(balanceKeyFmt, userID), units).Err()
}

// Balance returns the user's current balance.
func (l *RedisLedger) Balance(ctx context.Context, userID string) (int64, error) {
	val, err := l.client.Get(ctx, fmt.Sprintf(balanceKeyFmt, userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

func parseHold(hold string) (int64, string, error) {
	parts := strings.SplitN(hold, ":", 3)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("malformed hold %q", hold)
	}
	units, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed hold %q: %w", hold, err)
	}
	return units, parts[1], nil
}
