// Package engine is the crypto engine facade: a uniform interface over
// the hash, HMAC, ECC, LMS, ML-DSA, and TRNG primitives the verifier
// and DICE layer call out to. romguard is a software rendition, so
// Facade's production implementation wraps real cryptographic
// libraries instead of hardware engines, but every operation still
// returns the engine's own structured error rather than panicking, so
// a caller can capture every failure in an extended-error sink the way
// a silicon engine's status registers would.
package engine

import (
	"context"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/keyvault"
)

// Error is the structured failure type every Facade method returns.
// Op names the failing engine operation and is engine-local (not the
// romerr taxonomy); callers translate the failure into a romerr.Kind,
// keeping Error as the romerr.Error's Cause.
type Error struct {
	Op    string
	Cause error
}

func (e *Error) Error() string { return e.Op + ": " + e.Cause.Error() }
func (e *Error) Unwrap() error { return e.Cause }

func wrap(op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Cause: err}
}

// MldsaVerifyResult mirrors the engine's own success/failure
// vocabulary for ML-DSA-87: {Success, SigVerifyFailed}.
type MldsaVerifyResult int

const (
	MldsaSuccess MldsaVerifyResult = iota
	MldsaSigVerifyFailed
)

// HmacMode selects the HMAC hash width used by a given derivation step.
type HmacMode int

const (
	Hmac384 HmacMode = iota
	Hmac512
)

// KeyRef is either literal key bytes or a handle to a key-vault slot.
type KeyRef struct {
	Literal []byte
	Slot    keyvault.SlotID
	IsSlot  bool
}

func LiteralKey(b []byte) KeyRef        { return KeyRef{Literal: b} }
func SlotKey(id keyvault.SlotID) KeyRef { return KeyRef{Slot: id, IsSlot: true} }

// Facade is a polymorphic interface value: production and test-harness
// implementations both satisfy it, and the verifier never knows which
// one it has.
type Facade interface {
	Sha256Digest(data []byte) ([32]byte, error)
	// Sha384Digest hashes src[offset:offset+length]. There is no
	// separate mailbox-SRAM source: the caller passes the bytes, and a
	// range beyond src is an error.
	Sha384Digest(src []byte, offset, length uint64) ([48]byte, error)
	Sha512Digest(src []byte, offset, length uint64) ([64]byte, error)

	Hmac(ctx context.Context, mode HmacMode, key KeyRef, data []byte, dest keyvault.SlotID, usage keyvault.Usage) error
	HmacKDF(ctx context.Context, mode HmacMode, key keyvault.SlotID, label string, context []byte, dest keyvault.SlotID, usage keyvault.Usage) error

	Ecc384Keypair(ctx context.Context, seedSlot keyvault.SlotID, privOut keyvault.SlotID) (bundle.EccPublicKey, error)
	Ecc384Sign(ctx context.Context, privSlot keyvault.SlotID, pub bundle.EccPublicKey, digest [48]byte) (bundle.EccSignature, error)
	Ecc384Verify(pub bundle.EccPublicKey, digest [48]byte, sig bundle.EccSignature) (bool, error)

	// LmsVerify returns the candidate public-key hash value computed
	// from the signature and message digest; the caller compares it
	// against the descriptor-recorded hash.
	LmsVerify(digest [48]byte, pub bundle.LmsPublicKey, sig bundle.LmsSignature) ([48]byte, error)

	Mldsa87Keypair(ctx context.Context, seedSlot keyvault.SlotID) (bundle.MldsaPublicKey, error)
	Mldsa87Sign(ctx context.Context, seedSlot keyvault.SlotID, pub bundle.MldsaPublicKey, digest [64]byte) (bundle.MldsaSignature, error)
	Mldsa87Verify(pub bundle.MldsaPublicKey, msg [64]byte, sig bundle.MldsaSignature) (MldsaVerifyResult, error)

	// TrngDraw fills dst with random bytes, the counterpart of a
	// hardware TRNG draw.
	TrngDraw(dst []byte) error
}
