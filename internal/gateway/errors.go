package gateway

import "errors"

var (
	// ErrNoAuth covers every authentication and authorization failure:
	// unresolvable caller, bad nonce or timestamp, signature mismatch,
	// source address not allow-listed, missing session. Callers see a
	// single undifferentiated 403 so failures leak no oracle.
	ErrNoAuth = errors.New("gateway: no auth")
	// ErrResourceNotFound signals an unregistered interface or an
	// unsupported method for it.
	ErrResourceNotFound = errors.New("gateway: interface not found")
	// ErrQuotaExceeded signals that both the credit ledger and the legacy
	// counter are exhausted for the caller and resource.
	ErrQuotaExceeded = errors.New("gateway: quota exceeded")
)
