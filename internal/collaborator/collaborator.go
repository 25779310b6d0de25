// Package collaborator defines the contracts the gateway filter consumes
// from the rest of the marketplace: caller lookup, interface lookup and
// the two quota stores. All collaborators are remote and may fail
// independently; every call takes a context so the filter can bound it
// with a timeout.
package collaborator

import "context"

// Caller is the identity invoking a registered interface, resolved once
// per request and immutable for the request's lifetime.
type Caller struct {
	ID        int64
	AccessKey string
	SecretKey string
}

// Resource identifies the registered upstream interface being invoked.
type Resource struct {
	ID      int64
	Method  string
	FullURL string
}

// Counter is a legacy call-count entry for a (caller, resource) pair.
type Counter struct {
	LeftNum  int64 `json:"leftNum"`
	TotalNum int64 `json:"totalNum"`
}

// UserDirectory resolves caller identities. A nil Caller with a nil
// error means no matching caller exists.
type UserDirectory interface {
	ResolveByAccessKey(ctx context.Context, accessKey string) (*Caller, error)
	ResolveBySessionID(ctx context.Context, sessionID string) (*Caller, error)
}

// InterfaceRegistry resolves the target resource for a full URL and
// method. A nil Resource with a nil error means the interface is not
// registered or the method is unsupported.
type InterfaceRegistry interface {
	Resolve(ctx context.Context, fullURL, method string) (*Resource, error)
}

// QuotaLedger is the credit accounting system. CheckSufficient and
// Consume are separate remote calls; the ledger owns its own concurrency
// control and Consume may return false when a concurrent caller drained
// the balance after a successful check.
type QuotaLedger interface {
	CheckSufficient(ctx context.Context, callerID, resourceID, amount int64) (bool, error)
	Consume(ctx context.Context, callerID, resourceID, amount int64) (bool, error)
}

// LegacyCounter is the older call-count system retained as a fallback.
// DecrementIfPositive applies leftNum-1/totalNum+1 as a single
// conditional update and reports whether a row was changed.
type LegacyCounter interface {
	Get(ctx context.Context, callerID, resourceID int64) (*Counter, error)
	DecrementIfPositive(ctx context.Context, callerID, resourceID int64) (bool, error)
}
