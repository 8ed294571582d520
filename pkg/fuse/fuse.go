// Package fuse models the one-time-programmable fuse inputs. In
// silicon these are read-only, write-once registers; here they are a
// capability handle created once by the top-level flow and passed
// down by reference, never copied across a phase boundary.
package fuse

// Lifecycle is the device's manufacturing lifecycle state.
type Lifecycle int

const (
	LifecycleUnprovisioned Lifecycle = iota
	LifecycleManufacturing
	LifecycleProduction
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleUnprovisioned:
		return "unprovisioned"
	case LifecycleManufacturing:
		return "manufacturing"
	case LifecycleProduction:
		return "production"
	default:
		return "unknown"
	}
}

// PqcKeyType selects which post-quantum signature family the device is
// fused for.
type PqcKeyType uint8

const (
	PqcKeyTypeLMS PqcKeyType = iota
	PqcKeyTypeMLDSA
)

// Bank is the full set of fuse-backed inputs consumed by the verifier
// and the reset flows. Every field is read fresh on each verification
// phase; nothing here is cached across phases.
type Bank struct {
	Lifecycle           Lifecycle
	DebugLocked         bool
	AntiRollbackDisable bool

	VendorPubKeyInfoHash [48]byte
	OwnerPubKeyHash      [48]byte

	VendorEccRevocation  uint32
	VendorLmsRevocation  uint32
	VendorMldsaRevocation uint32

	FwFuseSvn uint32

	PqcKeyType PqcKeyType

	// IDevIDCertAttr carries vendor-programmed attributes (serial
	// number seed, UEID) mixed into the IDevID certificate.
	IDevIDCertAttr [24]byte
}

// SvnGateActive reports whether the anti-rollback SVN gate applies:
// provisioned lifecycle AND anti-rollback not disabled.
func (b *Bank) SvnGateActive() bool {
	return b.Lifecycle != LifecycleUnprovisioned && !b.AntiRollbackDisable
}

// OwnerPubKeyHashFused reports whether the fuse owner-pub-key hash slot
// was programmed (non-zero).
func (b *Bank) OwnerPubKeyHashFused() bool {
	return b.OwnerPubKeyHash != [48]byte{}
}

// RevocationWord returns the revocation bitmask for the active PQC
// family, since LMS and MLDSA keep independent revocation fuses.
func (b *Bank) RevocationWord(t PqcKeyType) uint32 {
	if t == PqcKeyTypeLMS {
		return b.VendorLmsRevocation
	}
	return b.VendorMldsaRevocation
}
