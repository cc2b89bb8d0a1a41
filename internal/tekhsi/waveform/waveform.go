// Package waveform builds typed, in-memory waveform value objects from a
// wire header and its assembled sample buffer. This is the last stage of the
// streaming fetcher pipeline (see internal/tekhsi/stream), turning an opaque
// byte buffer into the tagged variant the host program consumes.
package waveform

import (
	"fmt"
	"math"

	"github.com/tekhsi/tekhsi-go/internal/errors"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

// Kind discriminates the tagged TypedWaveform variant.
type Kind uint8

const (
	KindAnalog Kind = iota
	KindIQ
	KindDigital
)

func (k Kind) String() string {
	switch k {
	case KindAnalog:
		return "Analog"
	case KindIQ:
		return "IQ"
	case KindDigital:
		return "Digital"
	default:
		return "Unknown"
	}
}

// AnalogWaveform is a real-valued sampled signal plus its scaling metadata.
type AnalogWaveform struct {
	SampleCount int64
	HorizSpacing, HorizZeroIndex, HorizFractionalZeroIndex float64
	HorizUnits                                             string
	VertSpacing, VertOffset                                float64
	VertUnits                                               string
	Raw                                                     []byte  // raw encoding: element-width int samples, not yet de-normalized
	Values                                                   []float64 // normalized encoding: vertical-unit values
}

// Time returns the horizontal-axis value (seconds, or HorizUnits) of sample i,
// computed lazily from the header's scaling fields rather than precomputed
// for every sample.
func (w *AnalogWaveform) Time(i int64) float64 {
	return (float64(i) - w.HorizZeroIndex - w.HorizFractionalZeroIndex) * w.HorizSpacing
}

// IQWaveform is a complex-valued sampled signal from an IQ-paired acquisition.
type IQWaveform struct {
	SampleCount                                             int64
	HorizSpacing, HorizZeroIndex, HorizFractionalZeroIndex float64
	HorizUnits                                              string
	VertSpacing, VertOffset                                 float64
	VertUnits                                               string
	CenterFrequency, RBW, Span                              float64
	FFTLength                                                int32
	WindowType                                               string
	Values                                                   []complex128
}

func (w *IQWaveform) Time(i int64) float64 {
	return (float64(i) - w.HorizZeroIndex - w.HorizFractionalZeroIndex) * w.HorizSpacing
}

// DigitalWaveform is a bitmask-qualified array of raw digital sample bytes.
type DigitalWaveform struct {
	SampleCount int64
	HorizSpacing, HorizZeroIndex, HorizFractionalZeroIndex float64
	HorizUnits  string
	Bitmask     uint32
	Raw         []byte
}

func (w *DigitalWaveform) Time(i int64) float64 {
	return (float64(i) - w.HorizZeroIndex - w.HorizFractionalZeroIndex) * w.HorizSpacing
}

// TypedWaveform is the tagged variant returned to the consumer. Exactly one
// of Analog, IQ, Digital is non-nil, selected by Kind.
type TypedWaveform struct {
	Kind    Kind
	Analog  *AnalogWaveform
	IQ      *IQWaveform
	Digital *DigitalWaveform
}

// laneWidth returns the byte width of a single real lane implied by the
// header's source width and waveform kind.
func laneWidth(h *wire.WaveformHeader) (int, error) {
	switch h.WfmType {
	case wire.WfmTypeAnalog8, wire.WfmTypeDigital8:
		return 1, nil
	case wire.WfmTypeAnalog16, wire.WfmTypeDigital16, wire.WfmTypeAnalog16IQ:
		return 2, nil
	case wire.WfmTypeAnalogFloat:
		return 4, nil
	case wire.WfmTypeAnalog32IQ:
		return 4, nil
	default:
		if h.SourceWidth > 0 {
			return int(h.SourceWidth), nil
		}
		return 0, fmt.Errorf("waveform.element_size: unsupported wfm_type %v", h.WfmType)
	}
}

// ElementSize returns the number of bytes one header sample occupies on the
// wire, per §4.3: IQ waveforms carry two lanes (I and Q) per sample.
func ElementSize(h *wire.WaveformHeader) (int, error) {
	width, err := laneWidth(h)
	if err != nil {
		return 0, err
	}
	if h.WfmType == wire.WfmTypeAnalog16IQ || h.WfmType == wire.WfmTypeAnalog32IQ || h.PairType == wire.WfmPairTypePair {
		return width * 2, nil
	}
	return width, nil
}

// Build constructs the kind-specific typed waveform from a header and its
// fully assembled raw sample buffer (see internal/tekhsi/stream for assembly).
// buf is nil/empty when header.HasData is false.
func Build(h *wire.WaveformHeader, buf []byte) (*TypedWaveform, error) {
	switch h.WfmType {
	case wire.WfmTypeAnalog8, wire.WfmTypeAnalog16, wire.WfmTypeAnalogFloat:
		return buildAnalog(h, buf)
	case wire.WfmTypeAnalog16IQ, wire.WfmTypeAnalog32IQ:
		return buildIQ(h, buf)
	case wire.WfmTypeDigital8, wire.WfmTypeDigital16:
		return buildDigital(h, buf)
	default:
		return nil, errors.NewProtocolError("waveform.build", fmt.Errorf("unsupported wfm_type %v for source %q", h.WfmType, h.SourceName))
	}
}

func buildAnalog(h *wire.WaveformHeader, buf []byte) (*TypedWaveform, error) {
	w := &AnalogWaveform{
		SampleCount:              h.SampleCount,
		HorizSpacing:             h.HorizSpacing,
		HorizZeroIndex:           float64(h.HorizZeroIndex),
		HorizFractionalZeroIndex: h.HorizFractionalZeroIndex,
		HorizUnits:               h.HorizUnits,
		VertSpacing:              h.VertSpacing,
		VertOffset:               h.VertOffset,
		VertUnits:                h.VertUnits,
		Raw:                      cloneBytes(buf),
	}
	if h.WfmType == wire.WfmTypeAnalogFloat {
		vals, err := decodeFloat32(buf)
		if err != nil {
			return nil, err
		}
		w.Values = vals
	}
	return &TypedWaveform{Kind: KindAnalog, Analog: w}, nil
}

func buildIQ(h *wire.WaveformHeader, buf []byte) (*TypedWaveform, error) {
	lane, err := laneWidth(h)
	if err != nil {
		return nil, err
	}
	elem := lane * 2
	if len(buf)%elem != 0 {
		return nil, errors.NewProtocolError("waveform.build.iq", fmt.Errorf("buffer length %d not a multiple of element size %d", len(buf), elem))
	}
	n := len(buf) / elem
	values := make([]complex128, n)
	for i := 0; i < n; i++ {
		off := i * elem
		var re, im float64
		switch lane {
		case 2:
			re = float64(int16(uint16(buf[off])|uint16(buf[off+1])<<8))
			im = float64(int16(uint16(buf[off+2])|uint16(buf[off+3])<<8))
		case 4:
			re = float64(math.Float32frombits(uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24))
			im = float64(math.Float32frombits(uint32(buf[off+4]) | uint32(buf[off+5])<<8 | uint32(buf[off+6])<<16 | uint32(buf[off+7])<<24))
		default:
			return nil, fmt.Errorf("waveform.build.iq: unsupported lane width %d", lane)
		}
		values[i] = complex(re, im)
	}
	w := &IQWaveform{
		SampleCount:              h.SampleCount,
		HorizSpacing:             h.HorizSpacing,
		HorizZeroIndex:           float64(h.HorizZeroIndex),
		HorizFractionalZeroIndex: h.HorizFractionalZeroIndex,
		HorizUnits:               h.HorizUnits,
		VertSpacing:              h.VertSpacing,
		VertOffset:               h.VertOffset,
		VertUnits:                h.VertUnits,
		Values:                   values,
	}
	if h.IQ != nil {
		w.CenterFrequency = h.IQ.CenterFrequency
		w.RBW = h.IQ.RBW
		w.Span = h.IQ.Span
		w.FFTLength = h.IQ.FFTLength
		w.WindowType = h.IQ.WindowType
	}
	return &TypedWaveform{Kind: KindIQ, IQ: w}, nil
}

func buildDigital(h *wire.WaveformHeader, buf []byte) (*TypedWaveform, error) {
	w := &DigitalWaveform{
		SampleCount:              h.SampleCount,
		HorizSpacing:             h.HorizSpacing,
		HorizZeroIndex:           float64(h.HorizZeroIndex),
		HorizFractionalZeroIndex: h.HorizFractionalZeroIndex,
		HorizUnits:               h.HorizUnits,
		Bitmask:                  h.Bitmask,
		Raw:                      cloneBytes(buf),
	}
	return &TypedWaveform{Kind: KindDigital, Digital: w}, nil
}

// cloneBytes copies buf into a freshly allocated slice. Callers pass the
// assembled stream buffer in, which the fetcher returns to a shared pool
// (and zeroes) once Build returns; Analog and Digital waveforms retain
// their sample bytes past that point, so they cannot alias it.
func cloneBytes(buf []byte) []byte {
	if len(buf) == 0 {
		return nil
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}

func decodeFloat32(buf []byte) ([]float64, error) {
	if len(buf)%4 != 0 {
		return nil, errors.NewProtocolError("waveform.build.float", fmt.Errorf("buffer length %d not a multiple of 4", len(buf)))
	}
	out := make([]float64, len(buf)/4)
	for i := range out {
		off := i * 4
		bits := uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
		out[i] = float64(math.Float32frombits(bits))
	}
	return out, nil
}
