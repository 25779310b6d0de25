// Package redisledger implements the credit ledger contract on redis.
// Balances live under credit:{callerID}:{resourceID}; consumption is a
// Lua script so the balance check and the decrement are one atomic
// statement on the redis side.
package redisledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// consumeScript decrements the balance only when it still covers the
// requested amount. Returns 1 on success, 0 when the balance is missing
// or insufficient.
var consumeScript = redis.NewScript(`
local balance = tonumber(redis.call('GET', KEYS[1]))
if balance == nil or balance < tonumber(ARGV[1]) then
    return 0
end
redis.call('DECRBY', KEYS[1], ARGV[1])
return 1
`)

// Ledger is a credit ledger backed by a redis instance.
type Ledger struct {
	client *redis.Client
}

// New builds a ledger over the given redis address.
func New(addr, password string) *Ledger {
	return &Ledger{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// NewWithClient builds a ledger over an existing redis client.
func NewWithClient(client *redis.Client) *Ledger {
	return &Ledger{client: client}
}

func key(callerID, resourceID int64) string {
	return fmt.Sprintf("credit:%d:%d", callerID, resourceID)
}

// CheckSufficient reports whether the remaining balance covers amount.
// A missing key means a zero balance, not an error.
func (l *Ledger) CheckSufficient(ctx context.Context, callerID, resourceID, amount int64) (bool, error) {
	balance, err := l.client.Get(ctx, key(callerID, resourceID)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redisledger: check balance: %w", err)
	}
	return balance >= amount, nil
}

// Consume atomically deducts amount from the balance. Returns false when
// the balance no longer covers the amount (for example after losing a
// race to a concurrent consumer).
func (l *Ledger) Consume(ctx context.Context, callerID, resourceID, amount int64) (bool, error) {
	res, err := consumeScript.Run(ctx, l.client, []string{key(callerID, resourceID)}, amount).Int64()
	if err != nil {
		return false, fmt.Errorf("redisledger: consume: %w", err)
	}
	return res == 1, nil
}

// Close releases the underlying redis client.
func (l *Ledger) Close() error {
	return l.client.Close()
}
