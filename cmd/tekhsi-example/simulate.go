package main

import (
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

// newSimulatedClient builds a wire.FakeClient pre-loaded with a short,
// varying run of CH1 acquisitions: sample count doubles partway through so
// -filter=any_horizontal_change has something to reject and then accept.
func newSimulatedClient() *wire.FakeClient {
	fc := wire.NewFakeClient()
	fc.SetAvailableNames([]string{"CH1"})

	for transID := uint64(1); transID <= 3; transID++ {
		fc.QueueRawAcquisition("CH1", analogHeader(transID, 1000), samplePayload(1000))
	}
	for transID := uint64(4); transID <= 6; transID++ {
		fc.QueueRawAcquisition("CH1", analogHeader(transID, 2000), samplePayload(2000))
	}
	return fc
}

func analogHeader(transID uint64, sampleCount int64) *wire.WaveformHeader {
	return &wire.WaveformHeader{
		SourceName:     "CH1",
		TransID:        transID,
		SampleCount:    sampleCount,
		HorizSpacing:   1e-9,
		HorizZeroIndex: 0,
		HorizUnits:     "s",
		VertSpacing:    0.004,
		VertOffset:     0,
		VertUnits:      "V",
		WfmType:        wire.WfmTypeAnalogFloat,
		ChunkSize:      4096,
		HasData:        true,
	}
}

func samplePayload(sampleCount int64) []byte {
	return make([]byte, sampleCount*4)
}
