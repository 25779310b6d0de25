// Package gateway implements the request-interception filter at the
// heart of the marketplace: route classification, caller authentication,
// quota admission, request forwarding with body replay and post-response
// consumption settlement.
package gateway

import "strings"

// RouteClass is the policy bucket a request path sorts into. Exactly one
// class applies per request and the class decides which authentication
// and quota branch runs.
type RouteClass int

const (
	// RoutePassThrough is any path no other table claims; forwarded with
	// no auth or quota enforcement.
	RoutePassThrough RouteClass = iota
	// RoutePublic paths (register, login, logout...) bypass all checks.
	RoutePublic
	// RouteInternalDebug is the platform's debug-invocation endpoint,
	// session-authenticated with body-derived metering.
	RouteInternalDebug
	// RoutePlatform is a first-party business API, session-authenticated.
	RoutePlatform
	// RouteThirdParty is a signed third-party invocation, metered.
	RouteThirdParty
)

// String returns the class name for logging.
func (c RouteClass) String() string {
	switch c {
	case RoutePublic:
		return "public"
	case RouteInternalDebug:
		return "internal-debug"
	case RoutePlatform:
		return "platform"
	case RouteThirdParty:
		return "third-party"
	default:
		return "pass-through"
	}
}

// RouteTable holds the immutable path tables that drive classification.
type RouteTable struct {
	Public        []string
	InternalDebug []string
	Platform      []string
	ThirdParty    []string
}

// Classify maps a request path to its route class. Precedence is fixed:
// public, then internal-debug, then platform, then third-party; anything
// left is pass-through. First match wins, so a public prefix shadows any
// later table it overlaps with.
func (t *RouteTable) Classify(path string) RouteClass {
	switch {
	case matchesAny(path, t.Public):
		return RoutePublic
	case matchesAny(path, t.InternalDebug):
		return RouteInternalDebug
	case prefixAny(path, t.Platform):
		return RoutePlatform
	case prefixAny(path, t.ThirdParty):
		return RouteThirdParty
	default:
		return RoutePassThrough
	}
}

// matchesAny reports whether path equals an entry or continues it with a
// sub-path or query string ("/user/login" matches "/user/login",
// "/user/login/wx" and "/user/login?next=...").
func matchesAny(path string, entries []string) bool {
	for _, p := range entries {
		if path == p || strings.HasPrefix(path, p+"/") || strings.HasPrefix(path, p+"?") {
			return true
		}
	}
	return false
}

func prefixAny(path string, entries []string) bool {
	for _, p := range entries {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
