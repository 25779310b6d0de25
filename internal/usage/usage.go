// Package usage provides per-invocation usage records for observability
// and billing reconciliation. Records are fanned out to registered
// plugins; the default plugin writes them to the application log.
package usage

import (
	"context"
	"sync"
	"time"
)

// Record captures one metered invocation as observed by the gateway.
type Record struct {
	RequestID   string
	Path        string
	Method      string
	RouteClass  string
	CallerID    int64
	ResourceID  int64
	StatusCode  int
	Bytes       int64
	LatencyMS   int64
	UsedCredit  bool
	Settled     bool
	CompletedAt time.Time
}

// Plugin consumes usage records. Implementations must be lightweight and
// non-blocking; they run on the request goroutine after the response has
// been delivered.
type Plugin interface {
	HandleUsage(ctx context.Context, record Record)
}

var (
	pluginsMu sync.RWMutex
	plugins   []Plugin
)

// RegisterPlugin adds a plugin to the fan-out list.
func RegisterPlugin(p Plugin) {
	if p == nil {
		return
	}
	pluginsMu.Lock()
	plugins = append(plugins, p)
	pluginsMu.Unlock()
}

// Emit delivers the record to every registered plugin.
func Emit(ctx context.Context, record Record) {
	pluginsMu.RLock()
	snapshot := make([]Plugin, len(plugins))
	copy(snapshot, plugins)
	pluginsMu.RUnlock()
	for _, p := range snapshot {
		p.HandleUsage(ctx, record)
	}
}
