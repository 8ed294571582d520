// Package mailbox implements the pre-FW-load command loop: a single
// in-flight transaction, state machine Idle → Receiving → Responded →
// Idle. Checksum and VerifyChecksum implement the wire checksum rule;
// Step itself does not check Request.Checksum, and its responses carry
// no checksum.
package mailbox

import (
	"context"

	"github.com/openroot/romguard/pkg/cfi"
	"github.com/openroot/romguard/pkg/fuse"
	"github.com/openroot/romguard/pkg/persist"
	"github.com/openroot/romguard/pkg/romerr"
	"github.com/openroot/romguard/pkg/translog"
)

// State is the mailbox loop's position in its three-state cycle.
type State int

const (
	Idle State = iota
	Receiving
	Responded
)

// Command identifies a recognized mailbox request.
type Command uint32

const (
	CmdVersion Command = iota + 1
	CmdSelfTestStart
	CmdSelfTestGetResults
	CmdShutdown
	CmdCapabilities
	CmdStashMeasurement
	CmdGetIdevEccCsr
	CmdFirmwareLoad
	CmdRiDownloadFirmware
)

// MeasurementMaxCount bounds STASH_MEASUREMENT: the 9th measurement is
// fatal.
const MeasurementMaxCount = 8

// ReservedPauser is the SoC-PAUSER value the mailbox loop always
// rejects.
const ReservedPauser uint32 = 0xFFFFFFFF

// MaxImageByteSize bounds a single FIRMWARE_LOAD transaction's
// declared length; a dlen beyond this can never fit in the ICCM image
// regions and is rejected before staging.
const MaxImageByteSize = 0x40000

// defaultDelayIterations sizes the glitch-injection delay spun before
// every mailbox command is dispatched.
const defaultDelayIterations = 64

// Checksum computes the wire checksum: 256 minus the sum of all bytes
// (mod 256), over header+body excluding the checksum field itself.
func Checksum(b []byte) uint8 {
	var sum uint8
	for _, v := range b {
		sum += v
	}
	return uint8(256 - uint32(sum)%256)
}

// VerifyChecksum reports whether claimed equals Checksum computed over
// the whole of bodyWithZeroedChecksum. Callers pass the body with the
// checksum field zeroed (or removed), matching the "over header+body
// excluding checksum" rule.
func VerifyChecksum(bodyWithZeroedChecksum []byte, claimed uint8) bool {
	return Checksum(bodyWithZeroedChecksum) == claimed
}

// Request is one parsed mailbox command.
type Request struct {
	Pauser  uint32
	Command Command
	Body    []byte
	Checksum uint8
}

// SelfTestState tracks the KAT battery's own small state machine: the
// SELF_TEST_START / SELF_TEST_GET_RESULTS pair.
type SelfTestState int

const (
	SelfTestIdle SelfTestState = iota
	SelfTestInProgress
	SelfTestComplete
)

// Transaction is the single in-flight command the loop is allowed to
// hold at a time.
type Transaction struct {
	Req Request
}

// Loop drives the mailbox state machine. Callers (the reset flows)
// construct one per reset and call Step repeatedly until it returns a
// FirmwareLoad or RiDownloadFirmware outcome, at which point the loop
// breaks out for the flow to complete.
type Loop struct {
	state        State
	selfTest     SelfTestState
	measurements int
	pcrs         *translog.Bank
	persist      *persist.Region
	fuses        *fuse.Bank
	delay        *cfi.DelayCounter

	// activeMode gates RI_DOWNLOAD_FIRMWARE, which is valid only in
	// active mode.
	activeMode bool
}

// NewLoop constructs a mailbox loop. persist and fuses may be nil for
// callers that only exercise the command surface standalone (e.g. the
// serve-from-stdin harness); STASH_MEASUREMENT persistence and
// GET_IDEV_ECC_CSR then degrade to their PCR-only and
// always-unprovisioned behavior respectively.
func NewLoop(pcrs *translog.Bank, persistRegion *persist.Region, fuses *fuse.Bank, activeMode bool) *Loop {
	return &Loop{
		pcrs:       pcrs,
		persist:    persistRegion,
		fuses:      fuses,
		activeMode: activeMode,
		delay:      cfi.NewDelayCounter(defaultDelayIterations),
	}
}

// Outcome reports what Step produced: either a normal response to send
// back over the mailbox, or a break-out signal for FIRMWARE_LOAD /
// RI_DOWNLOAD_FIRMWARE whose completion belongs to the calling flow.
type Outcome struct {
	Response     []byte
	BreakOut     bool
	FatalErr     error
	NonFatalErr  error
}

// VersionBlob is the fixed response payload for CmdVersion.
var VersionBlob = []byte("romguard-rom-1")

// CapabilitiesBitset includes ROM_BASE.
const CapabilitiesBitset uint32 = 1 << 0 // ROM_BASE

// Step processes one request and advances the state machine. Only one
// request may be in flight: calling Step while the loop is not Idle
// returns a fatal programming error, the single in-flight-transaction
// rule.
func (l *Loop) Step(ctx context.Context, req Request) Outcome {
	if l.state != Idle {
		return Outcome{FatalErr: romerr.NewFatal(romerr.KindMailboxBusyDuringWarmReset)}
	}
	l.state = Receiving

	if req.Pauser == ReservedPauser {
		l.state = Idle
		return Outcome{NonFatalErr: romerr.New(romerr.KindReservedPauser)}
	}

	if l.delay != nil {
		l.delay.Spin()
	}

	out := l.dispatch(ctx, req)
	if out.BreakOut {
		// The flow owns completion; the loop does not return to Idle
		// until the flow explicitly finishes the transaction.
		return out
	}
	l.state = Responded
	l.state = Idle
	return out
}

func (l *Loop) dispatch(ctx context.Context, req Request) Outcome {
	switch req.Command {
	case CmdVersion:
		return Outcome{Response: VersionBlob}

	case CmdSelfTestStart:
		if l.selfTest != SelfTestInProgress {
			l.selfTest = SelfTestInProgress
		}
		return Outcome{Response: nil}

	case CmdSelfTestGetResults:
		l.selfTest = SelfTestComplete
		return Outcome{Response: []byte{1}}

	case CmdShutdown:
		return Outcome{Response: []byte{1}, FatalErr: romerr.NewFatal(romerr.KindUnknownResetReason)}

	case CmdCapabilities:
		return Outcome{Response: u32le(CapabilitiesBitset)}

	case CmdStashMeasurement:
		if l.measurements >= MeasurementMaxCount {
			return Outcome{FatalErr: romerr.NewFatal(romerr.KindStashMeasurementMaxLimit)}
		}
		if l.pcrs != nil {
			if err := l.pcrs.PCR31.Extend(req.Body); err != nil {
				return Outcome{NonFatalErr: err}
			}
		}
		if l.persist != nil {
			var entry persist.MeasurementLogEntry
			copy(entry.Measurement[:], req.Body)
			if err := l.persist.AppendMeasurement(entry); err != nil {
				return Outcome{NonFatalErr: err}
			}
		}
		l.measurements++
		return Outcome{Response: nil}

	case CmdGetIdevEccCsr:
		if l.fuses == nil || l.fuses.Lifecycle == fuse.LifecycleUnprovisioned {
			return Outcome{NonFatalErr: romerr.New(romerr.KindUnprovisionedCsrRequest)}
		}
		if l.persist == nil || len(l.persist.IDevIDCsrEcc) == 0 {
			return Outcome{NonFatalErr: romerr.New(romerr.KindUnprovisionedCsrRequest)}
		}
		return Outcome{Response: l.persist.IDevIDCsrEcc}

	case CmdFirmwareLoad:
		if len(req.Body) == 0 {
			return Outcome{FatalErr: romerr.NewFatal(romerr.KindInvalidImageSize)}
		}
		if len(req.Body) > MaxImageByteSize {
			return Outcome{FatalErr: romerr.NewFatal(romerr.KindInvalidImageSize)}
		}
		return Outcome{BreakOut: true}

	case CmdRiDownloadFirmware:
		if !l.activeMode {
			return Outcome{NonFatalErr: romerr.New(romerr.KindFirmwareLoadModeMismatch)}
		}
		return Outcome{BreakOut: true}

	default:
		return Outcome{FatalErr: romerr.NewFatal(romerr.KindInvalidCommand)}
	}
}

func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
