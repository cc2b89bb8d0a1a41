// Package wire defines the message shapes and client interface that a real
// instrument RPC stub (protoc-gen-go / protoc-gen-go-grpc output, from the
// service description in the oscilloscope's .proto file) would provide. No
// protoc invocation happens in this repository; these types are hand-written
// stand-ins so the rest of the module can be written, tested, and swapped to
// a generated client later without changing any call site.
package wire

import "time"

// ConnectStatus mirrors the instrument's ConnectStatus enum.
type ConnectStatus int32

const (
	ConnectStatusUnspecified ConnectStatus = iota
	ConnectStatusSuccess
	ConnectStatusInUse
	ConnectStatusNotConnected
	ConnectStatusOutsideSequence
	ConnectStatusTimeout
	ConnectStatusUnknown
)

func (s ConnectStatus) String() string {
	switch s {
	case ConnectStatusSuccess:
		return "Success"
	case ConnectStatusInUse:
		return "InUse"
	case ConnectStatusNotConnected:
		return "NotConnected"
	case ConnectStatusOutsideSequence:
		return "OutsideSequence"
	case ConnectStatusTimeout:
		return "Timeout"
	case ConnectStatusUnknown:
		return "Unknown"
	default:
		return "Unspecified"
	}
}

// WfmReplyStatus mirrors the instrument's per-message waveform stream status.
type WfmReplyStatus int32

const (
	WfmReplyStatusUnspecified WfmReplyStatus = iota
	WfmReplyStatusSuccess
	WfmReplyStatusNoConnection
	WfmReplyStatusOutsideSequence
	WfmReplyStatusSourceNameMissing
	WfmReplyStatusTypeMismatch
)

func (s WfmReplyStatus) String() string {
	switch s {
	case WfmReplyStatusSuccess:
		return "Success"
	case WfmReplyStatusNoConnection:
		return "NoConnection"
	case WfmReplyStatusOutsideSequence:
		return "OutsideSequence"
	case WfmReplyStatusSourceNameMissing:
		return "SourceNameMissing"
	case WfmReplyStatusTypeMismatch:
		return "TypeMismatch"
	default:
		return "Unspecified"
	}
}

// WfmType mirrors the instrument's waveform kind enum.
type WfmType int32

const (
	WfmTypeUnspecified WfmType = iota
	WfmTypeAnalog8
	WfmTypeAnalog16
	WfmTypeAnalogFloat
	WfmTypeAnalog16IQ
	WfmTypeAnalog32IQ
	WfmTypeDigital8
	WfmTypeDigital16
)

// WfmPairType mirrors the instrument's IQ pairing enum.
type WfmPairType int32

const (
	WfmPairTypeUnspecified WfmPairType = iota
	WfmPairTypeNone
	WfmPairTypePair
)

// ConnectRequest is sent for Connect, Disconnect, and KeepAlive.
type ConnectRequest struct {
	Name string
}

// ConnectReply answers Connect, Disconnect, and KeepAlive.
type ConnectReply struct {
	Status ConnectStatus
}

// AvailableNamesReply answers AvailableNames.
type AvailableNamesReply struct {
	Status      ConnectStatus
	SymbolNames []string
}

// WaveformRequest is sent for GetWaveform and GetRawWaveform.
type WaveformRequest struct {
	SourceName string
	ChunkSize  int32
}

// IQInfo carries the IQ-specific block of a header, populated only when
// WfmType is Analog16IQ or Analog32IQ.
type IQInfo struct {
	CenterFrequency float64
	FFTLength       int32
	RBW             float64
	Span            float64
	WindowType      string
}

// WaveformHeader is the first message of every waveform stream.
type WaveformHeader struct {
	SourceName  string
	SourceWidth int32
	DataID      uint64
	TransID     uint64

	HorizSpacing              float64
	HorizZeroIndex            int64
	HorizFractionalZeroIndex  float64
	SampleCount               int64
	HorizUnits                string

	VertSpacing float64
	VertOffset  float64
	VertUnits   string

	WfmType  WfmType
	Bitmask  uint32
	PairType WfmPairType
	IQ       *IQInfo

	ChunkSize int32
	HasData   bool
}

// NormalizedChunk carries a run of float32 samples in vertical units.
type NormalizedChunk struct {
	Samples []float32
}

// RawChunk carries a run of opaque, still vertical-scaled-but-not-applied bytes.
type RawChunk struct {
	Data []byte
}

// NormalizedReplyKind / RawReplyKind discriminate the oneof{header, chunk}
// carried by each stream message.
type NormalizedReplyKind int

const (
	NormalizedReplyKindHeader NormalizedReplyKind = iota
	NormalizedReplyKindChunk
)

type RawReplyKind int

const (
	RawReplyKindHeader RawReplyKind = iota
	RawReplyKindChunk
)

// NormalizedReply is one message of the GetWaveform server stream.
type NormalizedReply struct {
	Status WfmReplyStatus
	Kind   NormalizedReplyKind
	Header *WaveformHeader
	Chunk  *NormalizedChunk
}

// RawReply is one message of the GetRawWaveform server stream.
type RawReply struct {
	Status WfmReplyStatus
	Kind   RawReplyKind
	Header *WaveformHeader
	Chunk  *RawChunk
}

// arrivalClock is the single source of "now" for acquisition stamping; the
// coordinator calls Now instead of time.Now directly when stamping bundles
// and recording AccessData entry times, so the clock can be swapped in one place.
var arrivalClock = time.Now

// Now returns the current wall-clock time used for stamping acquisitions.
func Now() time.Time { return arrivalClock() }
