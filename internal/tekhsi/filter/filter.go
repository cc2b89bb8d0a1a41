// Package filter implements the acceptance filter hook: a pure predicate the
// pipeline consults before committing a candidate acquisition bundle.
package filter

import (
	"fmt"

	tekhsierrors "github.com/tekhsi/tekhsi-go/internal/errors"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

// Headers is a symbol-name-keyed snapshot of WaveformHeaders, the shape
// both PreviousHeaders and the candidate bundle's headers take when handed
// to a Filter.
type Headers map[string]*wire.WaveformHeader

// Filter decides whether a candidate acquisition should be committed.
// previous is nil before the first accepted bundle. Implementations must be
// pure and side-effect free; the pipeline may call a filter from its own
// goroutine only, but a panic or error is caught and treated as reject.
type Filter func(previous, current Headers) bool

// AnyAcq accepts every candidate. It is the default filter.
func AnyAcq(_, _ Headers) bool { return true }

// AnyVerticalChange accepts iff the symbol set changed, or some symbol
// present in both headers differs in VertSpacing or VertOffset.
func AnyVerticalChange(previous, current Headers) bool {
	if previous == nil {
		return true
	}
	if symbolSetChanged(previous, current) {
		return true
	}
	for symbol, curr := range current {
		prev, ok := previous[symbol]
		if !ok {
			continue
		}
		if curr.VertSpacing != prev.VertSpacing || curr.VertOffset != prev.VertOffset {
			return true
		}
	}
	return false
}

// AnyHorizontalChange accepts iff the symbol set changed, or some symbol
// present in both headers differs in SampleCount, HorizSpacing, or
// HorizZeroIndex.
func AnyHorizontalChange(previous, current Headers) bool {
	if previous == nil {
		return true
	}
	if symbolSetChanged(previous, current) {
		return true
	}
	for symbol, curr := range current {
		prev, ok := previous[symbol]
		if !ok {
			continue
		}
		if curr.SampleCount != prev.SampleCount ||
			curr.HorizSpacing != prev.HorizSpacing ||
			curr.HorizZeroIndex != prev.HorizZeroIndex {
			return true
		}
	}
	return false
}

func symbolSetChanged(previous, current Headers) bool {
	if len(previous) != len(current) {
		return true
	}
	for symbol := range current {
		if _, ok := previous[symbol]; !ok {
			return true
		}
	}
	return false
}

// Apply runs f against (previous, current), recovering a panic and
// reporting it as a reject plus a wrapped filterError the caller can log.
func Apply(f Filter, previous, current Headers) (accepted bool, err error) {
	if f == nil {
		f = AnyAcq
	}
	defer func() {
		if r := recover(); r != nil {
			accepted = false
			err = tekhsierrors.NewFilterError(fmt.Errorf("filter panicked: %v", r))
		}
	}()
	return f(previous, current), nil
}
