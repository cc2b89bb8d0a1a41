// Package stream pulls one waveform off a GetWaveform/GetRawWaveform server
// stream and reassembles its header and sample chunks into a single buffer,
// the way internal/tekhsi/wire.NormalizedStream/RawStream deliver them one
// message at a time.
package stream

import (
	"context"
	"fmt"
	"io"

	"github.com/tekhsi/tekhsi-go/internal/bufpool"
	"github.com/tekhsi/tekhsi-go/internal/errors"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/waveform"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

// Fetched is one complete, reassembled acquisition: its header plus the raw
// sample bytes concatenated in arrival order. ReleaseBuffer returns the
// backing buffer to the shared pool once the caller is done with it (after
// the typed waveform has been built from it).
type Fetched struct {
	Header *wire.WaveformHeader
	Buffer []byte
}

// ReleaseBuffer returns f.Buffer to the shared buffer pool. Safe to call on
// a zero-value Fetched or one whose buffer is nil.
func (f *Fetched) ReleaseBuffer() {
	if f == nil || f.Buffer == nil {
		return
	}
	bufpool.Put(f.Buffer)
	f.Buffer = nil
}

// FetchRaw opens GetRawWaveform for symbol and reassembles it into a single
// buffer. chunkSize is a hint passed to the instrument; 0 lets the instrument
// pick its default.
func FetchRaw(ctx context.Context, client wire.Client, symbol string, chunkSize int32) (*Fetched, error) {
	st, err := client.GetRawWaveform(ctx, &wire.WaveformRequest{SourceName: symbol, ChunkSize: chunkSize})
	if err != nil {
		return nil, classifyFetchError("stream.fetch_raw.open", symbol, err)
	}
	defer st.CloseSend()

	header, err := recvRawHeader(st, symbol)
	if err != nil {
		return nil, err
	}
	if !header.HasData {
		return &Fetched{Header: header}, nil
	}

	buf := bufpool.Get(int(header.ChunkSize))[:0]
	for {
		reply, err := st.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			bufpool.Put(buf)
			return nil, classifyFetchError("stream.fetch_raw.recv", symbol, err)
		}
		if reply.Status != wire.WfmReplyStatusSuccess {
			bufpool.Put(buf)
			return nil, errors.NewProtocolError("stream.fetch_raw", statusErr(symbol, reply.Status))
		}
		if reply.Kind != wire.RawReplyKindChunk || reply.Chunk == nil {
			continue
		}
		buf = append(buf, reply.Chunk.Data...)
	}

	elemSize, err := waveform.ElementSize(header)
	if err != nil {
		bufpool.Put(buf)
		return nil, errors.NewProtocolError("stream.fetch_raw", err)
	}
	want := int64(header.SampleCount) * int64(elemSize)
	got := int64(len(buf))
	if got != want {
		bufpool.Put(buf)
		return nil, errors.NewProtocolError("stream.fetch_raw", fmt.Errorf("symbol %q: assembled %d bytes, want %d (delta %d)", symbol, got, want, got-want))
	}

	return &Fetched{Header: header, Buffer: buf}, nil
}

// FetchNormalized opens GetWaveform for symbol and reassembles it into a
// flat float32 sample slice already in vertical units.
func FetchNormalized(ctx context.Context, client wire.Client, symbol string, chunkSize int32) (*wire.WaveformHeader, []float32, error) {
	st, err := client.GetWaveform(ctx, &wire.WaveformRequest{SourceName: symbol, ChunkSize: chunkSize})
	if err != nil {
		return nil, nil, classifyFetchError("stream.fetch_normalized.open", symbol, err)
	}
	defer st.CloseSend()

	header, err := recvNormalizedHeader(st, symbol)
	if err != nil {
		return nil, nil, err
	}
	if !header.HasData {
		return header, nil, nil
	}

	var samples []float32
	for {
		reply, err := st.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, classifyFetchError("stream.fetch_normalized.recv", symbol, err)
		}
		if reply.Status != wire.WfmReplyStatusSuccess {
			return nil, nil, errors.NewProtocolError("stream.fetch_normalized", statusErr(symbol, reply.Status))
		}
		if reply.Kind != wire.NormalizedReplyKindChunk || reply.Chunk == nil {
			continue
		}
		samples = append(samples, reply.Chunk.Samples...)
	}
	return header, samples, nil
}

func recvRawHeader(st wire.RawStream, symbol string) (*wire.WaveformHeader, error) {
	reply, err := st.Recv()
	if err != nil {
		return nil, classifyFetchError("stream.fetch_raw.header", symbol, err)
	}
	if reply.Status != wire.WfmReplyStatusSuccess {
		return nil, errors.NewProtocolError("stream.fetch_raw.header", statusErr(symbol, reply.Status))
	}
	if reply.Kind != wire.RawReplyKindHeader || reply.Header == nil {
		return nil, errors.NewProtocolError("stream.fetch_raw.header", errUnexpectedFirstMessage(symbol))
	}
	return reply.Header, nil
}

func recvNormalizedHeader(st wire.NormalizedStream, symbol string) (*wire.WaveformHeader, error) {
	reply, err := st.Recv()
	if err != nil {
		return nil, classifyFetchError("stream.fetch_normalized.header", symbol, err)
	}
	if reply.Status != wire.WfmReplyStatusSuccess {
		return nil, errors.NewProtocolError("stream.fetch_normalized.header", statusErr(symbol, reply.Status))
	}
	if reply.Kind != wire.NormalizedReplyKindHeader || reply.Header == nil {
		return nil, errors.NewProtocolError("stream.fetch_normalized.header", errUnexpectedFirstMessage(symbol))
	}
	return reply.Header, nil
}

func classifyFetchError(op, symbol string, err error) error {
	switch wire.ClassifyRPCError(err) {
	case "not_connected":
		return errors.NewConnectionError(op, err)
	case "timeout":
		return errors.NewTimeoutError(op, 0, err)
	default:
		return errors.NewProtocolError(op, err)
	}
}
