package stream

import (
	"context"
	"testing"

	tekhsierrors "github.com/tekhsi/tekhsi-go/internal/errors"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

func TestFetchRawSingleChunk(t *testing.T) {
	fc := wire.NewFakeClient()
	header := &wire.WaveformHeader{SourceName: "ch1", SampleCount: 4, HasData: true, ChunkSize: 4, WfmType: wire.WfmTypeAnalog8}
	fc.QueueRawAcquisition("ch1", header, []byte{1, 2, 3, 4})

	fetched, err := FetchRaw(context.Background(), fc, "ch1", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.Header.SourceName != "ch1" {
		t.Fatalf("header not carried through: %+v", fetched.Header)
	}
	if len(fetched.Buffer) != 4 || fetched.Buffer[3] != 4 {
		t.Fatalf("buffer mismatch: %+v", fetched.Buffer)
	}
	fetched.ReleaseBuffer()
	if fetched.Buffer != nil {
		t.Fatal("ReleaseBuffer should nil out the buffer")
	}
}

func TestFetchRawMultiChunkReassembly(t *testing.T) {
	fc := wire.NewFakeClient()
	header := &wire.WaveformHeader{SourceName: "ch1", SampleCount: 6, HasData: true, WfmType: wire.WfmTypeAnalog8}
	fc.QueueRawChunked("ch1", header, [][]byte{{1, 2}, {3, 4}, {5, 6}})

	fetched, err := FetchRaw(context.Background(), fc, "ch1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6}
	if len(fetched.Buffer) != len(want) {
		t.Fatalf("reassembled length mismatch: got %d want %d", len(fetched.Buffer), len(want))
	}
	for i, b := range want {
		if fetched.Buffer[i] != b {
			t.Fatalf("byte %d mismatch: got %d want %d", i, fetched.Buffer[i], b)
		}
	}
}

func TestFetchRawNoData(t *testing.T) {
	fc := wire.NewFakeClient()
	header := &wire.WaveformHeader{SourceName: "ch1", SampleCount: 0, HasData: false}
	fc.QueueRawAcquisition("ch1", header, nil)

	fetched, err := FetchRaw(context.Background(), fc, "ch1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.Buffer != nil {
		t.Fatalf("expected nil buffer for empty acquisition, got %+v", fetched.Buffer)
	}
}

func TestFetchRawLengthMismatchIsProtocolError(t *testing.T) {
	fc := wire.NewFakeClient()
	header := &wire.WaveformHeader{SourceName: "ch1", SampleCount: 4, HasData: true, WfmType: wire.WfmTypeAnalog8}
	fc.QueueRawAcquisition("ch1", header, []byte{1, 2, 3})

	_, err := FetchRaw(context.Background(), fc, "ch1", 0)
	if err == nil {
		t.Fatal("expected error for short delivery")
	}
	if !tekhsierrors.IsProtocolError(err) {
		t.Fatalf("expected a ProtocolError, got %T: %v", err, err)
	}
}

func TestFetchRawUnknownSymbol(t *testing.T) {
	fc := wire.NewFakeClient()
	if _, err := FetchRaw(context.Background(), fc, "missing", 0); err == nil {
		t.Fatal("expected error for unqueued symbol")
	}
}

func TestFetchRawStreamErrorIsTypedError(t *testing.T) {
	fc := wire.NewFakeClient()
	fc.QueueRawAcquisition("ch1", &wire.WaveformHeader{SourceName: "ch1", HasData: true}, []byte{1})
	fc.SetStreamError("ch1", context.DeadlineExceeded)

	_, err := FetchRaw(context.Background(), fc, "ch1", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !tekhsierrors.Is(err) {
		t.Fatalf("expected a typed tekhsi error, got %T: %v", err, err)
	}
}

func TestFetchNormalized(t *testing.T) {
	fc := wire.NewFakeClient()
	header := &wire.WaveformHeader{SourceName: "ch1", SampleCount: 2, HasData: true}
	fc.QueueRawAcquisition("ch1", header, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	gotHeader, samples, err := FetchNormalized(context.Background(), fc, "ch1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotHeader.SourceName != "ch1" {
		t.Fatalf("header mismatch: %+v", gotHeader)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 placeholder samples, got %d", len(samples))
	}
}
