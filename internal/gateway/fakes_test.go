package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/apimart/gateway/internal/collaborator"
)

// fakeDirectory is an in-memory user directory that counts lookups so
// tests can assert which collaborators were (not) consulted.
type fakeDirectory struct {
	byAccessKey map[string]*collaborator.Caller
	bySession   map[string]*collaborator.Caller

	accessKeyCalls atomic.Int64
	sessionCalls   atomic.Int64
	failLookups    bool
}

func (d *fakeDirectory) ResolveByAccessKey(ctx context.Context, accessKey string) (*collaborator.Caller, error) {
	d.accessKeyCalls.Add(1)
	if d.failLookups {
		return nil, errors.New("directory down")
	}
	return d.byAccessKey[accessKey], nil
}

func (d *fakeDirectory) ResolveBySessionID(ctx context.Context, sessionID string) (*collaborator.Caller, error) {
	d.sessionCalls.Add(1)
	if d.failLookups {
		return nil, errors.New("directory down")
	}
	return d.bySession[sessionID], nil
}

type fakeRegistry struct {
	resources map[string]*collaborator.Resource // key: method + " " + fullURL
	calls     atomic.Int64
	fail      bool
}

func (r *fakeRegistry) Resolve(ctx context.Context, fullURL, method string) (*collaborator.Resource, error) {
	r.calls.Add(1)
	if r.fail {
		return nil, errors.New("registry down")
	}
	return r.resources[method+" "+fullURL], nil
}

type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]int64

	checkCalls   int
	consumeCalls int
	failCheck    bool
	failConsume  bool
	denyConsume  bool
}

func ledgerKey(callerID, resourceID int64) string {
	return fmt.Sprintf("%d/%d", callerID, resourceID)
}

func (l *fakeLedger) CheckSufficient(ctx context.Context, callerID, resourceID, amount int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkCalls++
	if l.failCheck {
		return false, errors.New("ledger down")
	}
	return l.balances[ledgerKey(callerID, resourceID)] >= amount, nil
}

func (l *fakeLedger) Consume(ctx context.Context, callerID, resourceID, amount int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consumeCalls++
	if l.failConsume {
		return false, errors.New("ledger down")
	}
	if l.denyConsume {
		return false, nil
	}
	key := ledgerKey(callerID, resourceID)
	if l.balances[key] < amount {
		return false, nil
	}
	l.balances[key] -= amount
	return true, nil
}

func (l *fakeLedger) balance(callerID, resourceID int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[ledgerKey(callerID, resourceID)]
}

type fakeCounter struct {
	mu       sync.Mutex
	counters map[string]*collaborator.Counter

	getCalls       int
	decrementCalls int
	fail           bool
}

func (c *fakeCounter) Get(ctx context.Context, callerID, resourceID int64) (*collaborator.Counter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getCalls++
	if c.fail {
		return nil, errors.New("counter down")
	}
	counter, ok := c.counters[ledgerKey(callerID, resourceID)]
	if !ok {
		return nil, nil
	}
	clone := *counter
	return &clone, nil
}

func (c *fakeCounter) DecrementIfPositive(ctx context.Context, callerID, resourceID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decrementCalls++
	if c.fail {
		return false, errors.New("counter down")
	}
	counter, ok := c.counters[ledgerKey(callerID, resourceID)]
	if !ok || counter.LeftNum <= 0 {
		return false, nil
	}
	counter.LeftNum--
	counter.TotalNum++
	return true, nil
}

func (c *fakeCounter) entry(callerID, resourceID int64) collaborator.Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	counter, ok := c.counters[ledgerKey(callerID, resourceID)]
	if !ok {
		return collaborator.Counter{}
	}
	return *counter
}
