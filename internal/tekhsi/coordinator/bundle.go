package coordinator

import (
	"strings"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/tekhsi/tekhsi-go/internal/tekhsi/waveform"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

// BundleEntry pairs one symbol's header with its built typed waveform.
type BundleEntry struct {
	Header   *wire.WaveformHeader
	Waveform *waveform.TypedWaveform
}

// AcquisitionBundle is the set {symbol -> (header, TypedWaveform)} produced
// by one pipeline iteration, all sharing one TransID, plus its commit time.
// Immutable once constructed; safe to share across goroutines.
type AcquisitionBundle struct {
	TransID    uint64
	CommitTime *timestamppb.Timestamp
	Entries    map[string]BundleEntry // keyed by canonical (instrument-cased) symbol name

	lowerIndex map[string]string // lowercase -> canonical
}

// NewAcquisitionBundle builds a bundle from canonically-keyed entries,
// stamping it with the current arrival clock (see wire.Now).
func NewAcquisitionBundle(transID uint64, entries map[string]BundleEntry) *AcquisitionBundle {
	lower := make(map[string]string, len(entries))
	for name := range entries {
		lower[strings.ToLower(name)] = name
	}
	return &AcquisitionBundle{
		TransID:    transID,
		CommitTime: timestamppb.New(wire.Now()),
		Entries:    entries,
		lowerIndex: lower,
	}
}

// Get looks up symbol case-insensitively and returns its entry.
func (b *AcquisitionBundle) Get(symbol string) (BundleEntry, bool) {
	if b == nil {
		return BundleEntry{}, false
	}
	canonical, ok := b.lowerIndex[strings.ToLower(symbol)]
	if !ok {
		return BundleEntry{}, false
	}
	entry, ok := b.Entries[canonical]
	return entry, ok
}

// Headers returns the header-only snapshot of this bundle, used as
// PreviousHeaders input to the next iteration's acceptance filter.
func (b *AcquisitionBundle) Headers() map[string]*wire.WaveformHeader {
	if b == nil {
		return nil
	}
	out := make(map[string]*wire.WaveformHeader, len(b.Entries))
	for name, entry := range b.Entries {
		out[name] = entry.Header
	}
	return out
}

// Symbols returns the canonical symbol names present in this bundle.
func (b *AcquisitionBundle) Symbols() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.Entries))
	for name := range b.Entries {
		out = append(out, name)
	}
	return out
}
