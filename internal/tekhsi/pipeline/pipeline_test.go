package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tekhsi/tekhsi-go/internal/tekhsi/coordinator"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/filter"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/symbols"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

func analogHeader(transID uint64, sampleCount int64) *wire.WaveformHeader {
	return &wire.WaveformHeader{
		SourceName:  "ch1",
		TransID:     transID,
		SampleCount: sampleCount,
		WfmType:     wire.WfmTypeAnalogFloat,
		ChunkSize:   4096,
		HasData:     true,
	}
}

func floatPayload(n int) []byte {
	buf := make([]byte, n*4)
	return buf
}

func testConfig() Config {
	return Config{
		EmptySetSleep:   5 * time.Millisecond,
		MaxCoherenceTry: 3,
		ParallelThresh:  2,
		ParallelWorkers: 4,
	}
}

func TestPipelineCommitsOnMatchingTransID(t *testing.T) {
	fc := wire.NewFakeClient()
	fc.SetAvailableNames([]string{"ch1"})
	fc.QueueRawAcquisition("ch1", analogHeader(1, 4), floatPayload(4))

	reg := symbols.New(fc)
	coord := coordinator.New()
	p := New(fc, reg, coord, testConfig(), filter.AnyAcq)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx, nil)
	}()

	waitForCommit(t, coord, 200*time.Millisecond)
	cancel()
	wg.Wait()

	if coord.Committed() == nil {
		t.Fatal("expected a committed bundle")
	}
	if coord.Committed().TransID != 1 {
		t.Fatalf("expected trans id 1, got %d", coord.Committed().TransID)
	}
}

func TestPipelineSkipsEmptyActiveSet(t *testing.T) {
	fc := wire.NewFakeClient() // no available names
	reg := symbols.New(fc)
	coord := coordinator.New()
	p := New(fc, reg, coord, testConfig(), filter.AnyAcq)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	p.Run(ctx, nil)

	if coord.Committed() != nil {
		t.Fatal("expected no commit when the active set is empty")
	}
}

func TestPipelineStopsWhenBroken(t *testing.T) {
	fc := wire.NewFakeClient()
	fc.SetAvailableNames([]string{"ch1"})
	fc.QueueRawAcquisition("ch1", analogHeader(1, 4), floatPayload(4))

	reg := symbols.New(fc)
	coord := coordinator.New()
	p := New(fc, reg, coord, testConfig(), filter.AnyAcq)

	broken := make(chan struct{})
	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), func() bool {
			select {
			case <-broken:
				return true
			default:
				return false
			}
		})
		close(done)
	}()

	waitForCommit(t, coord, 200*time.Millisecond)
	close(broken)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline did not exit after broken signal")
	}
}

func TestPipelineFilterRejectsIdenticalAcquisitions(t *testing.T) {
	fc := wire.NewFakeClient()
	fc.SetAvailableNames([]string{"ch1"})
	// Same horizontal/vertical scaling on every replay -> AnyHorizontalChange
	// should reject all but the first.
	fc.QueueRawAcquisition("ch1", analogHeader(1, 4), floatPayload(4))

	reg := symbols.New(fc)
	coord := coordinator.New()
	var commits int
	var mu sync.Mutex
	coord.SetCallback(func(*coordinator.AcquisitionBundle) {
		mu.Lock()
		commits++
		mu.Unlock()
	})
	p := New(fc, reg, coord, testConfig(), filter.AnyHorizontalChange)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Run(ctx, nil)

	mu.Lock()
	defer mu.Unlock()
	if commits != 1 {
		t.Fatalf("expected exactly 1 commit under AnyHorizontalChange with a static replay, got %d", commits)
	}
}

func waitForCommit(t *testing.T, coord *coordinator.Coordinator, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if coord.Committed() != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a commit")
}
