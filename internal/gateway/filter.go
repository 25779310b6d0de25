package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/apimart/gateway/internal/collaborator"
	"github.com/apimart/gateway/internal/usage"
)

// Forwarder sends an admitted request upstream, streaming the response
// into w. It reports whether the response body completed.
type Forwarder interface {
	Forward(ctx context.Context, r *http.Request, w http.ResponseWriter) (bool, error)
}

// Policy is the immutable per-request view of the gateway's tables. The
// watcher swaps in a whole new snapshot on config change; a request
// loads it once at entry and never observes a mix of old and new.
type Policy struct {
	Table         RouteTable
	IPAllowList   []string
	SessionCookie string
	UpstreamHost  string
}

// Filter is the gateway's single chokepoint. Every inbound request is
// classified, authenticated per its route class, admitted against the
// quota stores, forwarded, and settled once the response completes.
type Filter struct {
	policy    atomic.Pointer[Policy]
	verifier  *SignatureVerifier
	directory collaborator.UserDirectory
	registry  collaborator.InterfaceRegistry
	gate      *QuotaGate
	forwarder Forwarder
	timeout   time.Duration
}

// NewFilter assembles the filter from its collaborators.
func NewFilter(policy Policy, verifier *SignatureVerifier, directory collaborator.UserDirectory,
	registry collaborator.InterfaceRegistry, gate *QuotaGate, forwarder Forwarder, timeout time.Duration) *Filter {
	f := &Filter{
		verifier:  verifier,
		directory: directory,
		registry:  registry,
		gate:      gate,
		forwarder: forwarder,
		timeout:   timeout,
	}
	f.policy.Store(&policy)
	return f
}

// UpdatePolicy atomically replaces the policy snapshot. In-flight
// requests keep the snapshot they started with.
func (f *Filter) UpdatePolicy(policy Policy) {
	f.policy.Store(&policy)
}

// Handle is the per-request pipeline, mounted as the gin handler for
// every path the gateway proxies.
func (f *Filter) Handle(c *gin.Context) {
	start := time.Now()
	policy := f.policy.Load()
	requestID := uuid.NewString()
	c.Header("X-Request-Id", requestID)

	path := c.Request.URL.Path
	class := policy.Table.Classify(path)
	logger := log.WithFields(log.Fields{
		"request": requestID,
		"class":   class.String(),
	})
	logger.Infof("%s %s from %s", c.Request.Method, c.Request.URL.RequestURI(), c.ClientIP())

	var (
		outcome *Outcome
		caller  *collaborator.Caller
	)

	switch class {
	case RoutePublic, RoutePassThrough:
		// Terminal success without checks: forward as-is, settle is a
		// no-op.

	case RoutePlatform:
		caller = f.sessionCaller(c, policy)
		if caller == nil {
			rejectNoAuth(c)
			return
		}

	case RouteInternalDebug:
		caller = f.sessionCaller(c, policy)
		if caller == nil {
			rejectNoAuth(c)
			return
		}
		body, err := CaptureBody(c.Request)
		if err != nil {
			logger.Errorf("capture debug body: %v", err)
			rejectNoAuth(c)
			return
		}
		resourceID, found := body.ExtractResourceID()
		if !found {
			// No interface id in the payload: the invocation proceeds but
			// nothing can be metered against it.
			logger.Warn("debug body carries no interface id, forwarding unmetered")
			break
		}
		outcome, err = f.admit(c, caller.ID, resourceID)
		if err != nil {
			rejectQuota(c)
			return
		}
		body.Rewind(c.Request)

	case RouteThirdParty:
		// The source address check comes before any credential is even
		// looked at.
		if !sourceAllowed(c.Request.RemoteAddr, policy.IPAllowList) {
			logger.Warnf("source %s not allow-listed", c.Request.RemoteAddr)
			rejectNoAuth(c)
			return
		}
		ctx, cancel := f.collabCtx(c)
		resolved, err := f.verifier.Verify(ctx, EnvelopeFromHeader(c.Request.Header))
		cancel()
		if err != nil {
			rejectNoAuth(c)
			return
		}
		caller = resolved

		fullURL := policy.UpstreamHost + path
		ctx, cancel = f.collabCtx(c)
		resource, err := f.registry.Resolve(ctx, fullURL, c.Request.Method)
		cancel()
		if err == nil && resource == nil {
			err = ErrResourceNotFound
		}
		if err != nil {
			logger.Warnf("resolve interface %s %s: %v", c.Request.Method, fullURL, err)
			rejectNoAuth(c)
			return
		}
		outcome, err = f.admit(c, caller.ID, resource.ID)
		if err != nil {
			rejectQuota(c)
			return
		}
	}

	writer := NewAccountingWriter(c.Writer, f.gate, outcome)
	completed, err := f.forwarder.Forward(c.Request.Context(), c.Request, writer)
	if err != nil {
		logger.Errorf("forward failed: %v", err)
		if !writer.Written() {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"message": "bad gateway"})
		}
		completed = false
	}
	writer.Finalize(c.Request.Context(), completed)
	c.Abort()

	record := usage.Record{
		RequestID:   requestID,
		Path:        path,
		Method:      c.Request.Method,
		RouteClass:  class.String(),
		StatusCode:  writer.Status(),
		Bytes:       writer.BytesWritten(),
		LatencyMS:   time.Since(start).Milliseconds(),
		CompletedAt: time.Now(),
	}
	if caller != nil {
		record.CallerID = caller.ID
	}
	if outcome != nil {
		record.ResourceID = outcome.ResourceID
		record.UsedCredit = outcome.UsedCreditLedger
		record.Settled = outcome.Settled()
	}
	usage.Emit(context.WithoutCancel(c.Request.Context()), record)
}

// admit runs the quota gate with a bounded collaborator context. Any
// rejection maps to ErrQuotaExceeded for the caller.
func (f *Filter) admit(c *gin.Context, callerID, resourceID int64) (*Outcome, error) {
	ctx, cancel := f.collabCtx(c)
	defer cancel()
	return f.gate.Admit(ctx, callerID, resourceID, 1)
}

// sessionCaller resolves the caller behind the session cookie, or nil
// when the cookie is absent or unknown.
func (f *Filter) sessionCaller(c *gin.Context, policy *Policy) *collaborator.Caller {
	sessionID, err := c.Cookie(policy.SessionCookie)
	if err != nil || sessionID == "" {
		return nil
	}
	ctx, cancel := f.collabCtx(c)
	defer cancel()
	caller, err := f.directory.ResolveBySessionID(ctx, sessionID)
	if err != nil {
		log.Errorf("resolve session failed: %v", err)
		return nil
	}
	return caller
}

func (f *Filter) collabCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), f.timeout)
}

func rejectNoAuth(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "forbidden"})
}

func rejectQuota(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "quota exceeded"})
}
