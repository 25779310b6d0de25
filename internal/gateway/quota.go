package gateway

import (
	"context"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/apimart/gateway/internal/collaborator"
)

// Outcome records which quota tier admitted a request. It is created
// when admission resolves, carried opaquely through forwarding and read
// exactly once by settlement.
type Outcome struct {
	CallerID         int64
	ResourceID       int64
	Amount           int64
	UsedCreditLedger bool

	settled atomic.Bool
}

// QuotaGate runs the two-tier check-then-consume protocol over the
// credit ledger with the legacy counter as fallback. Admission and
// settlement are symmetric ordered strategy chains: credit first, legacy
// second, short-circuit on the first tier that serves.
type QuotaGate struct {
	ledger  collaborator.QuotaLedger
	counter collaborator.LegacyCounter
}

// NewQuotaGate builds a gate over the two quota stores.
func NewQuotaGate(ledger collaborator.QuotaLedger, counter collaborator.LegacyCounter) *QuotaGate {
	return &QuotaGate{ledger: ledger, counter: counter}
}

// admitStrategy reports whether its tier can cover the amount. Errors
// are treated as "cannot cover" so a failing tier falls through instead
// of aborting the request.
type admitStrategy struct {
	name          string
	usedCredit    bool
	trySufficient func(ctx context.Context, callerID, resourceID, amount int64) (bool, error)
}

// Admit decides whether the caller may invoke the resource. The credit
// ledger is consulted first, failing closed on errors; only when credit
// cannot cover the amount is the legacy counter checked. Both
// insufficient yields ErrQuotaExceeded.
func (g *QuotaGate) Admit(ctx context.Context, callerID, resourceID, amount int64) (*Outcome, error) {
	strategies := []admitStrategy{
		{name: "credit", usedCredit: true, trySufficient: g.ledger.CheckSufficient},
		{name: "legacy", usedCredit: false, trySufficient: g.legacySufficient},
	}
	for _, s := range strategies {
		sufficient, err := s.trySufficient(ctx, callerID, resourceID, amount)
		if err != nil {
			log.Errorf("quota %s check failed for caller %d resource %d: %v", s.name, callerID, resourceID, err)
			continue
		}
		if sufficient {
			return &Outcome{
				CallerID:         callerID,
				ResourceID:       resourceID,
				Amount:           amount,
				UsedCreditLedger: s.usedCredit,
			}, nil
		}
	}
	return nil, ErrQuotaExceeded
}

func (g *QuotaGate) legacySufficient(ctx context.Context, callerID, resourceID, amount int64) (bool, error) {
	counter, err := g.counter.Get(ctx, callerID, resourceID)
	if err != nil {
		return false, err
	}
	return counter != nil && counter.LeftNum >= amount, nil
}

// Settle deducts consumption from the tier that admitted the request.
// It runs at most once per outcome; repeat calls are no-ops. A failed
// credit consume falls back to the legacy counter as a best-effort
// compensating action. Settlement failures are logged and absorbed: the
// response is already in flight and must not be disturbed.
func (g *QuotaGate) Settle(ctx context.Context, outcome *Outcome) {
	if outcome == nil || !outcome.settled.CompareAndSwap(false, true) {
		return
	}

	type settleStrategy struct {
		name string
		try  func() (bool, error)
	}
	var strategies []settleStrategy
	if outcome.UsedCreditLedger {
		strategies = append(strategies, settleStrategy{
			name: "credit",
			try: func() (bool, error) {
				return g.ledger.Consume(ctx, outcome.CallerID, outcome.ResourceID, outcome.Amount)
			},
		})
	}
	strategies = append(strategies, settleStrategy{
		name: "legacy",
		try: func() (bool, error) {
			return g.counter.DecrementIfPositive(ctx, outcome.CallerID, outcome.ResourceID)
		},
	})

	for _, s := range strategies {
		ok, err := s.try()
		if err != nil {
			log.Errorf("quota %s settle failed for caller %d resource %d: %v", s.name, outcome.CallerID, outcome.ResourceID, err)
			continue
		}
		if ok {
			log.Debugf("settled %d against %s ledger for caller %d resource %d", outcome.Amount, s.name, outcome.CallerID, outcome.ResourceID)
			return
		}
		log.Warnf("quota %s settle lost for caller %d resource %d, trying next tier", s.name, outcome.CallerID, outcome.ResourceID)
	}
	log.Errorf("consumption for caller %d resource %d could not be settled on any tier", outcome.CallerID, outcome.ResourceID)
}

// Settled reports whether settlement already ran for this outcome.
func (o *Outcome) Settled() bool {
	return o.settled.Load()
}
