package wire

import (
	"context"
	"io"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errEOS = io.EOF

// acquisition is one queued header + its ordered raw chunk payloads.
type acquisition struct {
	header *WaveformHeader
	chunks [][]byte
}

// FakeClient is an in-process stand-in for a generated gRPC client, used by
// this module's own tests to drive the pipeline and coordinator without a
// real instrument. It is safe for concurrent use.
type FakeClient struct {
	mu sync.Mutex

	connectStatus ConnectStatus
	connectErr    error
	keepAliveErr  error

	availableNames []string
	availableErr   error

	queues    map[string][]acquisition
	streamErr map[string]error
	callIndex map[string]int
}

// NewFakeClient returns a FakeClient that accepts Connect by default.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		connectStatus: ConnectStatusSuccess,
		queues:        make(map[string][]acquisition),
		streamErr:     make(map[string]error),
		callIndex:     make(map[string]int),
	}
}

// SetConnectStatus configures the reply Connect returns.
func (f *FakeClient) SetConnectStatus(s ConnectStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectStatus = s
}

// SetConnectError forces Connect to fail at the transport layer.
func (f *FakeClient) SetConnectError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

// SetKeepAliveError forces KeepAlive to fail at the transport layer.
func (f *FakeClient) SetKeepAliveError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keepAliveErr = err
}

// SetAvailableNames configures the result of AvailableNames.
func (f *FakeClient) SetAvailableNames(names []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availableNames = append([]string(nil), names...)
}

// SetAvailableError forces AvailableNames to fail at the transport layer.
func (f *FakeClient) SetAvailableError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availableErr = err
}

// QueueRawAcquisition appends one header + single-chunk payload to the
// symbol's stream queue. Each GetRawWaveform call dequeues the next queued
// acquisition; once the queue is exhausted the last entry replays forever,
// matching a free-running instrument that keeps re-arming on the same setup.
func (f *FakeClient) QueueRawAcquisition(symbol string, header *WaveformHeader, data []byte) {
	if !header.HasData {
		f.QueueRawChunked(symbol, header, nil)
		return
	}
	f.QueueRawChunked(symbol, header, [][]byte{data})
}

// QueueRawChunked is like QueueRawAcquisition but splits the payload across
// multiple stream messages, exercising the chunk-assembler's reassembly path.
func (f *FakeClient) QueueRawChunked(symbol string, header *WaveformHeader, chunks [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[symbol] = append(f.queues[symbol], acquisition{header: header, chunks: chunks})
}

// SetStreamError forces the next GetRawWaveform/GetWaveform call for symbol
// to fail at the transport layer (simulating a broken stream).
func (f *FakeClient) SetStreamError(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamErr[symbol] = err
}

func (f *FakeClient) Connect(ctx context.Context, req *ConnectRequest) (*ConnectReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &ConnectReply{Status: f.connectStatus}, nil
}

func (f *FakeClient) Disconnect(ctx context.Context, req *ConnectRequest) (*ConnectReply, error) {
	return &ConnectReply{Status: ConnectStatusSuccess}, nil
}

func (f *FakeClient) KeepAlive(ctx context.Context, req *ConnectRequest) (*ConnectReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keepAliveErr != nil {
		return nil, f.keepAliveErr
	}
	return &ConnectReply{Status: ConnectStatusSuccess}, nil
}

func (f *FakeClient) AvailableNames(ctx context.Context, req *ConnectRequest) (*AvailableNamesReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.availableErr != nil {
		return nil, f.availableErr
	}
	names := make([]string, len(f.availableNames))
	copy(names, f.availableNames)
	return &AvailableNamesReply{Status: ConnectStatusSuccess, SymbolNames: names}, nil
}

func (f *FakeClient) GetWaveform(ctx context.Context, req *WaveformRequest) (NormalizedStream, error) {
	acq, err := f.dequeue(req.SourceName)
	if err != nil {
		return nil, err
	}
	return &fakeNormalizedStream{acq: acq}, nil
}

func (f *FakeClient) GetRawWaveform(ctx context.Context, req *WaveformRequest) (RawStream, error) {
	acq, err := f.dequeue(req.SourceName)
	if err != nil {
		return nil, err
	}
	return &fakeRawStream{acq: acq}, nil
}

func (f *FakeClient) dequeue(symbol string) (acquisition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.streamErr[symbol]; err != nil {
		delete(f.streamErr, symbol)
		return acquisition{}, err
	}
	q := f.queues[symbol]
	if len(q) == 0 {
		return acquisition{}, status.Error(codes.NotFound, "no queued acquisition for symbol "+symbol)
	}
	idx := f.callIndex[symbol]
	if idx >= len(q) {
		idx = len(q) - 1
	}
	f.callIndex[symbol] = idx + 1
	return q[idx], nil
}

type fakeNormalizedStream struct {
	acq     acquisition
	sentHdr bool
	chunkAt int
}

func (s *fakeNormalizedStream) Recv() (*NormalizedReply, error) {
	if !s.sentHdr {
		s.sentHdr = true
		return &NormalizedReply{Status: WfmReplyStatusSuccess, Kind: NormalizedReplyKindHeader, Header: s.acq.header}, nil
	}
	if s.chunkAt >= len(s.acq.chunks) {
		return nil, errEOS
	}
	raw := s.acq.chunks[s.chunkAt]
	s.chunkAt++
	return &NormalizedReply{
		Status: WfmReplyStatusSuccess,
		Kind:   NormalizedReplyKindChunk,
		Chunk:  &NormalizedChunk{Samples: rawToFloats(raw)},
	}, nil
}
func (s *fakeNormalizedStream) CloseSend() error { return nil }

type fakeRawStream struct {
	acq     acquisition
	sentHdr bool
	chunkAt int
}

func (s *fakeRawStream) Recv() (*RawReply, error) {
	if !s.sentHdr {
		s.sentHdr = true
		return &RawReply{Status: WfmReplyStatusSuccess, Kind: RawReplyKindHeader, Header: s.acq.header}, nil
	}
	if s.chunkAt >= len(s.acq.chunks) {
		return nil, errEOS
	}
	raw := s.acq.chunks[s.chunkAt]
	s.chunkAt++
	return &RawReply{Status: WfmReplyStatusSuccess, Kind: RawReplyKindChunk, Chunk: &RawChunk{Data: raw}}, nil
}
func (s *fakeRawStream) CloseSend() error { return nil }

// rawToFloats produces a placeholder normalized view of a raw chunk for the
// (rarely exercised) GetWaveform path in tests; real normalization happens
// on the instrument.
func rawToFloats(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	return out
}
