// Package persist implements the Persistent Data Region: a single
// fixed-layout struct, ABI between ROM and FMC, holding the two
// manifest slots, the Firmware Handoff Table, the fuse/PCR/measurement
// logs, and the DICE TBS/CSR buffers.
package persist

import "github.com/openroot/romguard/pkg/bundle"

// FirmwareHandoffTable carries the indices and TBS sizes FMC needs to
// locate everything the ROM left behind.
type FirmwareHandoffTable struct {
	ManifestAddr uint32

	LDevIDTbsEccSize   uint32
	LDevIDTbsMldsaSize uint32

	FmcAliasTbsEccSize   uint32
	FmcAliasTbsMldsaSize uint32

	FmcEntryPoint uint32
	RtEntryPoint  uint32
}

// MeasurementLogEntry is one STASH_MEASUREMENT record.
type MeasurementLogEntry struct {
	Measurement bundle.Digest48
	Metadata    [4]byte
}

// ManifestSlot identifies which committed manifest a read targets.
type ManifestSlot int

const (
	ManifestSlot1 ManifestSlot = iota // currently committed
	ManifestSlot2                     // update-reset staging
)

// MaxMeasurementLogEntries is MEASUREMENT_MAX_COUNT.
const MaxMeasurementLogEntries = 8

// Region is the persistent data region. Only one flow owns it at a
// time; the warm-reset flow is read-mostly.
type Region struct {
	Manifest1 *bundle.Manifest
	Manifest2 *bundle.Manifest

	FHT FirmwareHandoffTable

	FuseLog         []bundle.Digest48
	PCRLog          []bundle.Digest48
	MeasurementLog  []MeasurementLogEntry

	LDevIDTbsEcc   []byte
	LDevIDTbsMldsa []byte

	FmcAliasTbsEcc   []byte
	FmcAliasTbsMldsa []byte

	IDevIDCsrEcc   []byte
	IDevIDCsrMldsa []byte
}

func New() *Region {
	return &Region{}
}

// AppendMeasurement appends a STASH_MEASUREMENT entry, enforcing the
// MEASUREMENT_MAX_COUNT cap.
func (r *Region) AppendMeasurement(e MeasurementLogEntry) error {
	if len(r.MeasurementLog) >= MaxMeasurementLogEntries {
		return errMeasurementLogFull
	}
	r.MeasurementLog = append(r.MeasurementLog, e)
	return nil
}

var errMeasurementLogFull = measurementLogFullError{}

type measurementLogFullError struct{}

func (measurementLogFullError) Error() string {
	return "persist: measurement log is at MEASUREMENT_MAX_COUNT"
}

// CommitManifest2 copies the update-reset staging slot into the
// committed slot, the step update reset performs on success.
func (r *Region) CommitManifest2() {
	m := *r.Manifest2
	r.Manifest1 = &m
}
