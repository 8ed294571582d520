// Package romerr defines the boot core's error-kind taxonomy. Every
// failure surfaced by the verifier, the mailbox loop, or a reset flow
// carries one of the Kind values below so callers can dispatch on
// failure class without string matching, and so FW_ERROR_FATAL /
// FW_ERROR_NON_FATAL registers can be populated with a stable code.
package romerr

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Kind classifies a romguard failure. The string value is also the
// status-register mnemonic written by the flows in pkg/flow.
type Kind string

const (
	// Structural
	KindManifestMarkerMismatch Kind = "IMAGE_VERIFIER_ERR_MANIFEST_MARKER_MISMATCH"
	KindManifestSizeMismatch   Kind = "IMAGE_VERIFIER_ERR_MANIFEST_SIZE_MISMATCH"
	KindPqcKeyTypeMismatch     Kind = "IMAGE_VERIFIER_ERR_FUSE_PQC_KEY_TYPE_MISMATCH"
	KindDescriptorVersion      Kind = "IMAGE_VERIFIER_ERR_KEY_DESCRIPTOR_VERSION_MISMATCH"
	KindDescriptorHashCount    Kind = "IMAGE_VERIFIER_ERR_KEY_DESCRIPTOR_HASH_COUNT_INVALID"
	KindDescriptorKeyType      Kind = "IMAGE_VERIFIER_ERR_KEY_DESCRIPTOR_KEY_TYPE_MISMATCH"

	// Digest
	KindSha384EngineFailure      Kind = "IMAGE_VERIFIER_ERR_SHA384_ENGINE_FAILURE"
	KindSha512EngineFailure      Kind = "IMAGE_VERIFIER_ERR_SHA512_ENGINE_FAILURE"
	KindVendorPubKeyDigestFuse   Kind = "IMAGE_VERIFIER_ERR_VENDOR_PUB_KEY_DIGEST_MISMATCH"
	KindOwnerPubKeyDigestFuse    Kind = "IMAGE_VERIFIER_ERR_OWNER_PUB_KEY_DIGEST_MISMATCH"
	KindVendorEccKeyDigestInDesc Kind = "IMAGE_VERIFIER_ERR_VENDOR_ECC_PUB_KEY_DIGEST_IN_DESCRIPTOR_MISMATCH"
	KindVendorPqcKeyDigestInDesc Kind = "IMAGE_VERIFIER_ERR_VENDOR_PQC_PUB_KEY_DIGEST_IN_DESCRIPTOR_MISMATCH"
	KindTocDigestMismatch        Kind = "IMAGE_VERIFIER_ERR_TOC_DIGEST_MISMATCH"
	KindFmcDigestMismatch        Kind = "IMAGE_VERIFIER_ERR_FMC_DIGEST_MISMATCH"
	KindRuntimeDigestMismatch    Kind = "IMAGE_VERIFIER_ERR_RUNTIME_DIGEST_MISMATCH"

	// Signature
	KindVendorEccSignatureInvalid     Kind = "IMAGE_VERIFIER_ERR_VENDOR_ECC_SIGNATURE_INVALID"
	KindVendorEccSignatureEngine      Kind = "IMAGE_VERIFIER_ERR_VENDOR_ECC_SIGNATURE_INVALID_ARG"
	KindVendorPqcSignatureInvalid     Kind = "IMAGE_VERIFIER_ERR_VENDOR_PQC_SIGNATURE_INVALID"
	KindVendorPqcSignatureEngine      Kind = "IMAGE_VERIFIER_ERR_VENDOR_PQC_SIGNATURE_INVALID_ARG"
	KindOwnerEccSignatureInvalid      Kind = "IMAGE_VERIFIER_ERR_OWNER_ECC_SIGNATURE_INVALID"
	KindOwnerEccSignatureEngine       Kind = "IMAGE_VERIFIER_ERR_OWNER_ECC_SIGNATURE_INVALID_ARG"
	KindOwnerPqcSignatureInvalid      Kind = "IMAGE_VERIFIER_ERR_OWNER_PQC_SIGNATURE_INVALID"
	KindOwnerPqcSignatureEngine       Kind = "IMAGE_VERIFIER_ERR_OWNER_PQC_SIGNATURE_INVALID_ARG"
	KindPqcMissingSha512Digest        Kind = "IMAGE_VERIFIER_ERR_PQC_MISSING_SHA512_DIGEST"
	KindHeaderVendorIndexMismatch     Kind = "IMAGE_VERIFIER_ERR_HEADER_VENDOR_INDEX_MISMATCH"

	// Index / revocation
	KindVendorEccKeyIndexOOB     Kind = "IMAGE_VERIFIER_ERR_VENDOR_ECC_PUB_KEY_INDEX_OUT_OF_BOUNDS"
	KindVendorEccKeyRevoked      Kind = "IMAGE_VERIFIER_ERR_VENDOR_ECC_PUB_KEY_REVOKED"
	KindVendorPqcKeyIndexOOB     Kind = "IMAGE_VERIFIER_ERR_VENDOR_PQC_PUB_KEY_INDEX_OUT_OF_BOUNDS"
	KindVendorPqcKeyRevoked      Kind = "IMAGE_VERIFIER_ERR_VENDOR_PQC_PUB_KEY_REVOKED"
	KindUpdateResetIndexMismatch Kind = "IMAGE_VERIFIER_ERR_UPDATE_RESET_VENDOR_INDEX_MISMATCH"

	// Geometry
	KindFmcSizeZero           Kind = "IMAGE_VERIFIER_ERR_FMC_SIZE_ZERO"
	KindRuntimeSizeZero       Kind = "IMAGE_VERIFIER_ERR_RUNTIME_SIZE_ZERO"
	KindFmcRuntimeOverlap     Kind = "IMAGE_VERIFIER_ERR_FMC_RUNTIME_OVERLAP"
	KindFmcRuntimeOutOfOrder  Kind = "IMAGE_VERIFIER_ERR_FMC_RUNTIME_OUT_OF_ORDER"
	KindLoadAddressOverflow   Kind = "IMAGE_VERIFIER_ERR_LOAD_ADDRESS_OVERFLOW"
	KindLoadAddressNotInIccm  Kind = "IMAGE_VERIFIER_ERR_LOAD_ADDRESS_NOT_IN_ICCM"
	KindLoadAddressUnaligned  Kind = "IMAGE_VERIFIER_ERR_LOAD_ADDRESS_UNALIGNED"
	KindEntryPointUnaligned   Kind = "IMAGE_VERIFIER_ERR_ENTRY_POINT_UNALIGNED"
	KindIccmRangeOverlap      Kind = "IMAGE_VERIFIER_ERR_ICCM_RANGE_OVERLAP"
	KindImageExceedsBundle    Kind = "IMAGE_VERIFIER_ERR_IMAGE_LEN_MORE_THAN_BUNDLE_SIZE"
	KindTocEntryCountMismatch Kind = "IMAGE_VERIFIER_ERR_TOC_ENTRY_COUNT_MISMATCH"

	// SVN
	KindSvnExceedsMax Kind = "IMAGE_VERIFIER_ERR_FW_SVN_GREATER_THAN_MAX_SUPPORTED"
	KindSvnBelowFloor Kind = "IMAGE_VERIFIER_ERR_FW_SVN_LESS_THAN_FUSE"

	// Update-reset cross-checks
	KindUpdateResetOwnerDigestFailure Kind = "UPDATE_RESET_OWNER_DIGEST_FAILURE"
	KindUpdateResetFmcDigestMismatch  Kind = "UPDATE_RESET_FMC_DIGEST_MISMATCH"

	// Mailbox / flow
	KindReservedPauser              Kind = "FW_PROC_MAILBOX_RESERVED_PAUSER"
	KindInvalidCommand               Kind = "FW_PROC_MAILBOX_INVALID_COMMAND"
	KindInvalidRequestLength          Kind = "FW_PROC_MAILBOX_INVALID_REQUEST_LENGTH"
	KindInvalidChecksum               Kind = "FW_PROC_MAILBOX_INVALID_CHECKSUM"
	KindStashMeasurementMaxLimit      Kind = "FW_PROC_MAILBOX_STASH_MEASUREMENT_MAX_LIMIT"
	KindInvalidImageSize              Kind = "FW_PROC_INVALID_IMAGE_SIZE"
	KindRecoveryInterfaceUnavailable  Kind = "FW_PROC_RECOVERY_INTERFACE_UNAVAILABLE"
	KindFirmwareLoadModeMismatch      Kind = "FW_PROC_FIRMWARE_LOAD_MODE_MISMATCH"
	KindUnprovisionedCsrRequest       Kind = "FW_PROC_UNPROVISIONED_CSR_REQUEST"

	// Reset
	KindUnknownResetReason            Kind = "ROM_UNKNOWN_RESET_FATAL"
	KindWarmResetAfterIncompleteCold  Kind = "ROM_WARM_RESET_UNSUCCESSFUL_PREVIOUS_COLD_RESET"
	KindWarmResetAfterIncompleteUpdate Kind = "ROM_WARM_RESET_UNSUCCESSFUL_PREVIOUS_UPDATE_RESET"
	KindUpdateResetWrongCommand        Kind = "ROM_UPDATE_RESET_WRONG_COMMAND"
	KindMailboxBusyDuringWarmReset     Kind = "ROM_WARM_RESET_MAILBOX_BUSY"

	// Internal programming error
	KindSvnInternalOverflow Kind = "ROM_INTERNAL_SVN_OVERFLOW"
)

// Error is the concrete error type every romguard operation returns. It
// always carries a stable Kind plus, for engine-sourced failures, the
// underlying engine cause (mirrored into the extended-error sink by
// the caller).
type Error struct {
	Kind  Kind
	Cause error
}

func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, romerr.New(KindX)) match by Kind alone,
// ignoring Cause, which is how call sites assert which failure fired.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from err, or "" if err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Fatal wraps an Error to mark it as requiring the single fatal
// zeroize-and-lock path rather than a recoverable phase failure.
type Fatal struct {
	*Error
}

func NewFatal(kind Kind) *Fatal {
	return &Fatal{Error: New(kind)}
}

func WrapFatal(kind Kind, cause error) *Fatal {
	return &Fatal{Error: Wrap(kind, cause)}
}

func (f *Fatal) Error() string { return "fatal: " + f.Error.Error() }

func (f *Fatal) Unwrap() error { return f.Error }

// IsFatal reports whether err carries fatal boot-halting semantics.
func IsFatal(err error) bool {
	var f *Fatal
	return errors.As(err, &f)
}

// Aggregate accumulates more than one error, for a caller that
// collects multiple outcomes rather than terminating on the first; no
// romguard package outside its tests uses it yet (the verifier stops at
// its first error). Built on hashicorp/go-multierror, the same
// aggregation primitive the upstream controller's go.mod declares.
type Aggregate struct {
	merr *multierror.Error
}

func NewAggregate() *Aggregate {
	return &Aggregate{merr: &multierror.Error{}}
}

func (a *Aggregate) Add(err error) {
	if err == nil {
		return
	}
	a.merr = multierror.Append(a.merr, err)
}

// ErrorOrNil returns nil if no errors were added, else the aggregate.
func (a *Aggregate) ErrorOrNil() error {
	return a.merr.ErrorOrNil()
}

func (a *Aggregate) Len() int {
	return len(a.merr.Errors)
}
