package coordinator

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tekhsierrors "github.com/tekhsi/tekhsi-go/internal/errors"
)

func bundleWithSymbols(transID uint64, symbols ...string) *AcquisitionBundle {
	entries := make(map[string]BundleEntry, len(symbols))
	for _, s := range symbols {
		entries[s] = BundleEntry{}
	}
	return NewAcquisitionBundle(transID, entries)
}

func TestAnyAcqFirstCommitBlocksUntilAvailable(t *testing.T) {
	c := New()
	done := make(chan error, 1)
	go func() {
		_, err := c.AccessData(context.Background(), AnyAcq, 0)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("AnyAcq returned before any commit")
	case <-time.After(50 * time.Millisecond):
	}

	c.Commit(bundleWithSymbols(1, "ch1"))
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AnyAcq did not return after commit")
	}
}

func TestAnyAcqReturnsImmediatelyWhenCommitted(t *testing.T) {
	c := New()
	c.Commit(bundleWithSymbols(1, "ch1"))
	scope, err := c.AccessData(context.Background(), AnyAcq, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scope.TransID() != 1 {
		t.Fatalf("trans id mismatch: %d", scope.TransID())
	}
	scope.Release()
}

func TestNewDataBlocksSecondScopeUntilNewCommit(t *testing.T) {
	c := New()
	c.Commit(bundleWithSymbols(1, "ch1"))

	scope1, err := c.AccessData(context.Background(), NewData, 0)
	if err != nil {
		t.Fatalf("first scope: %v", err)
	}
	if _, err := scope1.GetData("ch1"); err != nil {
		t.Fatalf("get_data: %v", err)
	}
	scope1.Release()

	done := make(chan uint64, 1)
	go func() {
		scope2, err := c.AccessData(context.Background(), NewData, 0)
		if err != nil {
			done <- 0
			return
		}
		done <- scope2.TransID()
		scope2.Release()
	}()

	select {
	case <-done:
		t.Fatal("second NewData scope returned before a new commit")
	case <-time.After(50 * time.Millisecond):
	}

	c.Commit(bundleWithSymbols(2, "ch1"))
	select {
	case transID := <-done:
		if transID != 2 {
			t.Fatalf("expected trans id 2, got %d", transID)
		}
	case <-time.After(time.Second):
		t.Fatal("second scope never unblocked")
	}
}

func TestNextAcqStrictlyAfterEntry(t *testing.T) {
	c := New()
	c.Commit(bundleWithSymbols(1, "ch1"))

	done := make(chan uint64, 1)
	go func() {
		scope, err := c.AccessData(context.Background(), NextAcq, 0)
		if err != nil {
			done <- 0
			return
		}
		done <- scope.TransID()
		scope.Release()
	}()

	select {
	case <-done:
		t.Fatal("NextAcq returned the already-committed bundle")
	case <-time.After(50 * time.Millisecond):
	}

	c.Commit(bundleWithSymbols(2, "ch1"))
	select {
	case transID := <-done:
		if transID != 2 {
			t.Fatalf("expected trans id 2, got %d", transID)
		}
	case <-time.After(time.Second):
		t.Fatal("NextAcq never unblocked")
	}
}

func TestConcurrentScopesSerialize(t *testing.T) {
	c := New()
	c.Commit(bundleWithSymbols(1, "ch1"))

	scope1, err := c.AccessData(context.Background(), AnyAcq, 0)
	if err != nil {
		t.Fatalf("first scope: %v", err)
	}

	var secondEntered atomic.Bool
	go func() {
		scope2, err := c.AccessData(context.Background(), AnyAcq, 0)
		if err == nil {
			secondEntered.Store(true)
			scope2.Release()
		}
	}()

	time.Sleep(50 * time.Millisecond)
	if secondEntered.Load() {
		t.Fatal("second AccessData entered while first scope still open")
	}
	scope1.Release()
	time.Sleep(50 * time.Millisecond)
	if !secondEntered.Load() {
		t.Fatal("second AccessData never entered after first released")
	}
}

func TestPendingBundleFlushedAfterRelease(t *testing.T) {
	c := New()
	c.Commit(bundleWithSymbols(1, "ch1"))

	scope, err := c.AccessData(context.Background(), AnyAcq, 0)
	if err != nil {
		t.Fatalf("scope: %v", err)
	}

	// Commit while pinned: must not replace the committed bundle yet.
	c.Commit(bundleWithSymbols(2, "ch1"))
	if c.Committed().TransID != 1 {
		t.Fatalf("committed bundle replaced while scope open: %d", c.Committed().TransID)
	}

	scope.Release()
	c.FlushPending()

	if c.Committed().TransID != 2 {
		t.Fatalf("pending bundle not flushed after release: %d", c.Committed().TransID)
	}
}

func TestCallbackInvokedOncePerCommitInOrder(t *testing.T) {
	c := New()
	var mu sync.Mutex
	var seen []uint64
	c.SetCallback(func(b *AcquisitionBundle) {
		mu.Lock()
		seen = append(seen, b.TransID)
		mu.Unlock()
	})

	c.Commit(bundleWithSymbols(1, "ch1"))
	c.Commit(bundleWithSymbols(2, "ch1"))
	c.Commit(bundleWithSymbols(3, "ch1"))

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 2 || seen[2] != 3 {
		t.Fatalf("callback order mismatch: %v", seen)
	}
}

func TestGetDataCaseInsensitive(t *testing.T) {
	c := New()
	c.Commit(bundleWithSymbols(1, "CH1"))
	scope, err := c.AccessData(context.Background(), AnyAcq, 0)
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	defer scope.Release()
	if _, err := scope.GetData("ch1"); err != nil {
		t.Fatalf("lowercase lookup failed: %v", err)
	}
	if _, err := scope.GetData("Ch1"); err != nil {
		t.Fatalf("mixed-case lookup failed: %v", err)
	}
}

func TestGetDataUnknownSymbol(t *testing.T) {
	c := New()
	c.Commit(bundleWithSymbols(1, "ch1"))
	scope, err := c.AccessData(context.Background(), AnyAcq, 0)
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	defer scope.Release()
	if _, err := scope.GetData("ch99"); err == nil {
		t.Fatal("expected UnknownSymbolError")
	}
}

func TestGetDataAfterReleaseFailsNoAccessScope(t *testing.T) {
	c := New()
	c.Commit(bundleWithSymbols(1, "ch1"))
	scope, err := c.AccessData(context.Background(), AnyAcq, 0)
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	scope.Release()
	_, err = scope.GetData("ch1")
	if err == nil {
		t.Fatal("expected error after release")
	}
	var nas *tekhsierrors.NoAccessScopeError
	if !stderrors.As(err, &nas) {
		t.Fatalf("expected NoAccessScopeError, got %T: %v", err, err)
	}
}

func TestSessionBrokenWakesBlockedWaiter(t *testing.T) {
	c := New()
	done := make(chan error, 1)
	go func() {
		_, err := c.AccessData(context.Background(), AnyAcq, 0)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	c.MarkBroken()
	select {
	case err := <-done:
		if !tekhsierrors.IsSessionBroken(err) {
			t.Fatalf("expected SessionBrokenError, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked waiter never woke on broken session")
	}
}

func TestCloseRejectsNewAccessData(t *testing.T) {
	c := New()
	c.Close()
	_, err := c.AccessData(context.Background(), AnyAcq, 0)
	if err == nil {
		t.Fatal("expected error after close")
	}
}

func TestContextCancellationUnblocksWaiter(t *testing.T) {
	c := New()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.AccessData(ctx, AnyAcq, 0)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestTimeModeSleepsThenBehavesAsNextAcq(t *testing.T) {
	c := New()
	c.Commit(bundleWithSymbols(1, "ch1"))

	start := time.Now()
	done := make(chan struct{})
	go func() {
		scope, err := c.AccessData(context.Background(), Time, 30*time.Millisecond)
		if err != nil {
			close(done)
			return
		}
		scope.Release()
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	c.Commit(bundleWithSymbols(2, "ch1"))

	select {
	case <-done:
		if time.Since(start) < 30*time.Millisecond {
			t.Fatal("Time mode did not sleep before evaluating NextAcq")
		}
	case <-time.After(time.Second):
		t.Fatal("Time mode never unblocked")
	}
}
