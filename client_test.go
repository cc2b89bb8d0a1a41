package tekhsi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tekhsi/tekhsi-go/internal/tekhsi/pipeline"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

func testHeader(transID uint64, sampleCount int64) *wire.WaveformHeader {
	return &wire.WaveformHeader{
		SourceName:  "ch1",
		TransID:     transID,
		SampleCount: sampleCount,
		WfmType:     wire.WfmTypeAnalogFloat,
		ChunkSize:   4096,
		HasData:     true,
	}
}

func fastPipelineConfig() *pipeline.Config {
	return &pipeline.Config{
		EmptySetSleep:   5 * time.Millisecond,
		MaxCoherenceTry: 3,
		ParallelThresh:  2,
		ParallelWorkers: 4,
	}
}

func TestConnectAndAccessDataEndToEnd(t *testing.T) {
	fc := wire.NewFakeClient()
	fc.SetAvailableNames([]string{"ch1"})
	fc.QueueRawAcquisition("ch1", testHeader(1, 4), make([]byte, 16))

	client, err := Connect(context.Background(), fc, "tcp://sim:5000", Options{PipelineConfig: fastPipelineConfig()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close(context.Background())

	scope, err := client.AccessData(context.Background(), AnyAcq, 0)
	if err != nil {
		t.Fatalf("access_data: %v", err)
	}
	defer scope.Release()

	wf, err := scope.GetData("ch1")
	if err != nil {
		t.Fatalf("get_data: %v", err)
	}
	if wf.Kind.String() != "Analog" {
		t.Fatalf("expected Analog waveform, got %s", wf.Kind)
	}
}

func TestConnectRejectedByInstrument(t *testing.T) {
	fc := wire.NewFakeClient()
	fc.SetConnectStatus(wire.ConnectStatusInUse)

	_, err := Connect(context.Background(), fc, "tcp://sim:5000", Options{})
	if err == nil {
		t.Fatal("expected connect to fail")
	}
}

func TestSetCallbackReceivesCommits(t *testing.T) {
	fc := wire.NewFakeClient()
	fc.SetAvailableNames([]string{"ch1"})
	fc.QueueRawAcquisition("ch1", testHeader(1, 4), make([]byte, 16))

	var mu sync.Mutex
	var gotTransID uint64
	received := make(chan struct{}, 1)

	client, err := Connect(context.Background(), fc, "tcp://sim:5000", Options{
		PipelineConfig: fastPipelineConfig(),
		Callback: func(b *AcquisitionBundle) {
			mu.Lock()
			gotTransID = b.TransID
			mu.Unlock()
			select {
			case received <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close(context.Background())

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("callback was never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotTransID != 1 {
		t.Fatalf("expected trans id 1, got %d", gotTransID)
	}
}

func TestCloseIsIdempotentAndRejectsFurtherAccess(t *testing.T) {
	fc := wire.NewFakeClient()
	fc.SetAvailableNames([]string{"ch1"})
	fc.QueueRawAcquisition("ch1", testHeader(1, 4), make([]byte, 16))

	client, err := Connect(context.Background(), fc, "tcp://sim:5000", Options{PipelineConfig: fastPipelineConfig()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := client.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := client.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, err := client.AccessData(context.Background(), AnyAcq, 0); err == nil {
		t.Fatal("expected access_data after close to fail")
	}
}

func TestActiveSymbolsReflectsRegistry(t *testing.T) {
	fc := wire.NewFakeClient()
	fc.SetAvailableNames([]string{"CH1", "CH2"})
	fc.QueueRawAcquisition("CH1", testHeader(1, 4), make([]byte, 16))
	fc.QueueRawAcquisition("CH2", testHeader(1, 4), make([]byte, 16))

	client, err := Connect(context.Background(), fc, "tcp://sim:5000", Options{PipelineConfig: fastPipelineConfig()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close(context.Background())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(client.ActiveSymbols()) == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("active symbols never reflected the registry")
}
