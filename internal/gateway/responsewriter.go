package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// AccountingWriter wraps gin.ResponseWriter so consumption can be
// settled after the upstream response has streamed back. Bytes always go
// to the client first and are never altered or buffered; the wrapper
// only observes the status code and the stream shape.
type AccountingWriter struct {
	gin.ResponseWriter
	gate    *QuotaGate
	outcome *Outcome

	statusCode   int
	bytesWritten int64
	chunks       int
	settleOnce   sync.Once
}

// NewAccountingWriter decorates w with settlement bookkeeping for the
// given admission outcome. A nil outcome produces a pure pass-through
// writer (public and unmetered routes).
func NewAccountingWriter(w gin.ResponseWriter, gate *QuotaGate, outcome *Outcome) *AccountingWriter {
	return &AccountingWriter{
		ResponseWriter: w,
		gate:           gate,
		outcome:        outcome,
	}
}

// WriteHeader records the upstream status before passing it on.
func (w *AccountingWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write forwards the chunk to the real caller first, then updates the
// local stream counters. Settlement never happens inside Write: it waits
// for stream completion so multi-chunk responses charge exactly once.
func (w *AccountingWriter) Write(data []byte) (int, error) {
	n, err := w.ResponseWriter.Write(data)
	w.bytesWritten += int64(n)
	w.chunks++
	return n, err
}

// WriteString keeps gin's string fast path on the same accounting path.
func (w *AccountingWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Finalize settles consumption once the stream has completed. It charges
// only when the upstream reported success, the stream finished cleanly
// and the caller is still connected; everything else leaves both ledgers
// untouched. Settlement failures are logged by the gate and never
// surface to the caller, whose bytes are already delivered.
func (w *AccountingWriter) Finalize(ctx context.Context, streamCompleted bool) {
	if w.outcome == nil {
		return
	}
	w.settleOnce.Do(func() {
		if !streamCompleted {
			log.Warnf("upstream stream for caller %d resource %d did not complete, skipping settlement", w.outcome.CallerID, w.outcome.ResourceID)
			return
		}
		if ctx.Err() != nil {
			log.Warnf("caller %d disconnected before resource %d finished, skipping settlement", w.outcome.CallerID, w.outcome.ResourceID)
			return
		}
		if !isSuccess(w.Status()) {
			log.Debugf("upstream returned %d for caller %d resource %d, no charge", w.Status(), w.outcome.CallerID, w.outcome.ResourceID)
			return
		}
		// Settlement must not inherit the request's cancellation: the
		// response is complete and the charge has to land.
		w.gate.Settle(context.WithoutCancel(ctx), w.outcome)
	})
}

// Status returns the observed status code, defaulting to 200 when the
// upstream wrote a body without an explicit header.
func (w *AccountingWriter) Status() int {
	if w.statusCode == 0 {
		return w.ResponseWriter.Status()
	}
	return w.statusCode
}

// BytesWritten returns how many response bytes passed through.
func (w *AccountingWriter) BytesWritten() int64 {
	return w.bytesWritten
}

// Chunks returns how many write calls the stream delivered.
func (w *AccountingWriter) Chunks() int {
	return w.chunks
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
