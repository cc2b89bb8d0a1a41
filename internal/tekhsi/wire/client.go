package wire

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NormalizedStream is the subset of the generated
// "IDataStreamService_GetWaveformClient" streaming-client interface the core
// depends on. A real grpc.ClientStream satisfies this trivially.
type NormalizedStream interface {
	Recv() (*NormalizedReply, error)
	CloseSend() error
}

// RawStream is the raw-encoding counterpart of NormalizedStream.
type RawStream interface {
	Recv() (*RawReply, error)
	CloseSend() error
}

// Client is the RPC surface the session & connection manager, symbol
// discovery, and streaming fetcher are written against. It stands in for the
// generated "IDataStreamServiceClient" produced from the instrument's .proto
// file by protoc-gen-go-grpc; a real deployment wires a grpc.ClientConn
// through a generated client that satisfies this interface unmodified.
type Client interface {
	Connect(ctx context.Context, req *ConnectRequest) (*ConnectReply, error)
	Disconnect(ctx context.Context, req *ConnectRequest) (*ConnectReply, error)
	KeepAlive(ctx context.Context, req *ConnectRequest) (*ConnectReply, error)
	AvailableNames(ctx context.Context, req *ConnectRequest) (*AvailableNamesReply, error)
	GetWaveform(ctx context.Context, req *WaveformRequest) (NormalizedStream, error)
	GetRawWaveform(ctx context.Context, req *WaveformRequest) (RawStream, error)
}

// ClassifyRPCError maps a transport-layer error (as a generated grpc client
// would return it, wrapped in a *status.Status) onto a terse reason string.
// The streaming fetcher (internal/tekhsi/stream) uses it to pick an error
// kind: "not_connected" becomes a ConnectionError, "timeout" a TimeoutError,
// and any other reason a ProtocolError. Errors that carry no gRPC status
// classify as "unknown".
func ClassifyRPCError(err error) string {
	if err == nil {
		return ""
	}
	st, ok := status.FromError(err)
	if !ok {
		return "unknown"
	}
	switch st.Code() {
	case codes.OK:
		return ""
	case codes.DeadlineExceeded:
		return "timeout"
	case codes.Unavailable, codes.Canceled:
		return "not_connected"
	case codes.FailedPrecondition, codes.Aborted:
		return "outside_sequence"
	case codes.AlreadyExists:
		return "in_use"
	default:
		return "unknown"
	}
}
