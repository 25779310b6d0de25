package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/apimart/gateway/internal/collaborator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestWriter(t *testing.T, gate *QuotaGate, outcome *Outcome) (*AccountingWriter, *httptest.ResponseRecorder) {
	t.Helper()
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	return NewAccountingWriter(c.Writer, gate, outcome), recorder
}

func admittedOutcome(t *testing.T, gate *QuotaGate) *Outcome {
	t.Helper()
	outcome, err := gate.Admit(context.Background(), 1, 2, 1)
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	return outcome
}

func creditGate(balance int64) (*QuotaGate, *fakeLedger, *fakeCounter) {
	ledger := &fakeLedger{balances: map[string]int64{ledgerKey(1, 2): balance}}
	counter := &fakeCounter{counters: map[string]*collaborator.Counter{}}
	return NewQuotaGate(ledger, counter), ledger, counter
}

func TestFinalizeSettlesOnceForMultiChunkStream(t *testing.T) {
	t.Parallel()

	gate, ledger, _ := creditGate(100)
	outcome := admittedOutcome(t, gate)
	w, recorder := newTestWriter(t, gate, outcome)

	w.WriteHeader(http.StatusOK)
	for i := 0; i < 5; i++ {
		if _, err := w.Write([]byte("chunk\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	w.Finalize(context.Background(), true)
	w.Finalize(context.Background(), true)

	if ledger.consumeCalls != 1 {
		t.Fatalf("Consume called %d times for a 5-chunk stream, want 1", ledger.consumeCalls)
	}
	if got := recorder.Body.String(); got != "chunk\nchunk\nchunk\nchunk\nchunk\n" {
		t.Fatalf("client received %q, bytes must pass through unmodified", got)
	}
	if w.Chunks() != 5 {
		t.Fatalf("Chunks() = %d, want 5", w.Chunks())
	}
}

func TestFinalizeSkipsNonSuccessStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusInternalServerError, http.StatusNotFound, http.StatusBadGateway} {
		gate, ledger, counter := creditGate(100)
		outcome := admittedOutcome(t, gate)
		w, _ := newTestWriter(t, gate, outcome)

		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"upstream"}`))
		w.Finalize(context.Background(), true)

		if ledger.consumeCalls != 0 || counter.decrementCalls != 0 {
			t.Fatalf("status %d: ledgers touched (consume=%d, decrement=%d), failed upstream calls must never be charged",
				status, ledger.consumeCalls, counter.decrementCalls)
		}
	}
}

func TestFinalizeSkipsAbandonedStream(t *testing.T) {
	t.Parallel()

	gate, ledger, _ := creditGate(100)
	outcome := admittedOutcome(t, gate)
	w, _ := newTestWriter(t, gate, outcome)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("partial"))
	w.Finalize(context.Background(), false)

	if ledger.consumeCalls != 0 {
		t.Fatal("an incomplete stream must not be charged")
	}
}

func TestFinalizeSkipsDisconnectedCaller(t *testing.T) {
	t.Parallel()

	gate, ledger, _ := creditGate(100)
	outcome := admittedOutcome(t, gate)
	w, _ := newTestWriter(t, gate, outcome)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("done"))
	w.Finalize(ctx, true)

	if ledger.consumeCalls != 0 {
		t.Fatal("a disconnected caller must not be charged")
	}
}

func TestNilOutcomePassesThrough(t *testing.T) {
	t.Parallel()

	gate, ledger, counter := creditGate(100)
	w, recorder := newTestWriter(t, gate, nil)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("public"))
	w.Finalize(context.Background(), true)

	if ledger.consumeCalls != 0 || counter.decrementCalls != 0 {
		t.Fatal("unmetered routes must never touch a ledger")
	}
	if recorder.Body.String() != "public" {
		t.Fatalf("client received %q, want %q", recorder.Body.String(), "public")
	}
}
