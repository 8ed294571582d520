package engine

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/big"

	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"golang.org/x/crypto/hkdf"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/keyvault"
)

// HardwareFacade is the production Facade. It has no hardware behind
// it; it wraps stdlib and ecosystem cryptographic primitives behind
// the same interface a hardware-backed engine would present, so the
// verifier, DICE layer, and CFI harness are written exactly as they
// would be against real silicon.
//
// Hash/HMAC and ECDSA-P384 use the standard library: no ecosystem
// engine wrapper for these primitives appears anywhere in the
// retrieved corpus beyond thin stdlib wrappers, so wrapping stdlib
// directly is the documented exception (see DESIGN.md). ML-DSA-87 uses
// circl, the PQC library the retrieved corpus's EVM-precompile example
// depends on. LMS has no ecosystem implementation anywhere in the
// corpus; HardwareFacade's LmsVerify is a stand-in rather than an
// RFC 8554 verifier (a SHA-384 over signature and digest, built on
// crypto/sha512), which is likewise documented as a stdlib exception.
type HardwareFacade struct {
	Vault *keyvault.Vault
}

func NewHardwareFacade(v *keyvault.Vault) *HardwareFacade {
	return &HardwareFacade{Vault: v}
}

var _ Facade = (*HardwareFacade)(nil)

func (f *HardwareFacade) Sha256Digest(data []byte) ([32]byte, error) {
	return sha256.Sum256(data), nil
}

func (f *HardwareFacade) Sha384Digest(src []byte, offset, length uint64) ([48]byte, error) {
	var out [48]byte
	if offset+length > uint64(len(src)) {
		return out, wrap("sha384_digest", fmt.Errorf("range [%d:%d) exceeds source length %d", offset, offset+length, len(src)))
	}
	sum := sha512.Sum384(src[offset : offset+length])
	copy(out[:], sum[:])
	return out, nil
}

func (f *HardwareFacade) Sha512Digest(src []byte, offset, length uint64) ([64]byte, error) {
	var out [64]byte
	if offset+length > uint64(len(src)) {
		return out, wrap("sha512_digest", fmt.Errorf("range [%d:%d) exceeds source length %d", offset, offset+length, len(src)))
	}
	sum := sha512.Sum512(src[offset : offset+length])
	copy(out[:], sum[:])
	return out, nil
}

func (f *HardwareFacade) resolveKey(ref KeyRef) ([]byte, error) {
	if !ref.IsSlot {
		return ref.Literal, nil
	}
	return f.Vault.Read(ref.Slot, keyvault.UsageHmacKey)
}

func hmacSum(mode HmacMode, key, data []byte) []byte {
	if mode == Hmac512 {
		mac := hmac.New(sha512.New, key)
		mac.Write(data)
		return mac.Sum(nil)
	}
	mac := hmac.New(sha512.New384, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func (f *HardwareFacade) Hmac(ctx context.Context, mode HmacMode, key KeyRef, data []byte, dest keyvault.SlotID, usage keyvault.Usage) error {
	k, err := f.resolveKey(key)
	if err != nil {
		return wrap("hmac", err)
	}
	tag := hmacSum(mode, k, data)
	if err := f.Vault.Write(dest, tag, usage); err != nil {
		return wrap("hmac", err)
	}
	return nil
}

func (f *HardwareFacade) HmacKDF(ctx context.Context, mode HmacMode, keySlot keyvault.SlotID, label string, context []byte, dest keyvault.SlotID, usage keyvault.Usage) error {
	key, err := f.Vault.Read(keySlot, keyvault.UsageHmacKey)
	if err != nil {
		return wrap("hmac_kdf", err)
	}
	var hashFn = sha512.New384
	if mode == Hmac512 {
		hashFn = sha512.New
	}
	reader := hkdf.New(hashFn, key, nil, append([]byte(label), context...))
	out := make([]byte, 48)
	if mode == Hmac512 {
		out = make([]byte, 64)
	}
	if _, err := fillFrom(reader, out); err != nil {
		return wrap("hmac_kdf", err)
	}
	if err := f.Vault.Write(dest, out, usage); err != nil {
		return wrap("hmac_kdf", err)
	}
	return nil
}

func fillFrom(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("short read")
		}
	}
	return total, nil
}

func (f *HardwareFacade) Ecc384Keypair(ctx context.Context, seedSlot keyvault.SlotID, privOut keyvault.SlotID) (bundle.EccPublicKey, error) {
	var pub bundle.EccPublicKey
	seed, err := f.Vault.Read(seedSlot, keyvault.UsageEccKeygenSeed)
	if err != nil {
		return pub, wrap("ecc384_keypair", err)
	}
	curve := elliptic.P384()
	d := new(big.Int).SetBytes(seed)
	order := curve.Params().N
	d.Mod(d, order)
	if d.Sign() == 0 {
		d.SetInt64(1)
	}
	x, y := curve.ScalarBaseMult(d.Bytes())
	copyFieldElement(pub.X[:], x)
	copyFieldElement(pub.Y[:], y)
	if err := f.Vault.Write(privOut, d.Bytes(), keyvault.UsageEccPrivateKey); err != nil {
		return pub, wrap("ecc384_keypair", err)
	}
	return pub, nil
}

func copyFieldElement(dst []byte, v *big.Int) {
	b := v.Bytes()
	if len(b) > len(dst) {
		b = b[len(b)-len(dst):]
	}
	copy(dst[len(dst)-len(b):], b)
}

func (f *HardwareFacade) Ecc384Sign(ctx context.Context, privSlot keyvault.SlotID, pub bundle.EccPublicKey, digest [48]byte) (bundle.EccSignature, error) {
	var sig bundle.EccSignature
	priv, err := f.Vault.Read(privSlot, keyvault.UsageEccPrivateKey)
	if err != nil {
		return sig, wrap("ecc384_sign", err)
	}
	curve := elliptic.P384()
	pk := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve, X: new(big.Int).SetBytes(pub.X[:]), Y: new(big.Int).SetBytes(pub.Y[:])},
		D:         new(big.Int).SetBytes(priv),
	}
	r, s, err := ecdsa.Sign(rand.Reader, pk, digest[:])
	if err != nil {
		return sig, wrap("ecc384_sign", err)
	}
	copyFieldElement(sig.R[:], r)
	copyFieldElement(sig.S[:], s)
	return sig, nil
}

func (f *HardwareFacade) Ecc384Verify(pub bundle.EccPublicKey, digest [48]byte, sig bundle.EccSignature) (bool, error) {
	curve := elliptic.P384()
	pk := &ecdsa.PublicKey{Curve: curve, X: new(big.Int).SetBytes(pub.X[:]), Y: new(big.Int).SetBytes(pub.Y[:])}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	return ecdsa.Verify(pk, digest[:], r, s), nil
}

// LmsVerify stands in for the LMS candidate public-key computation
// with a single SHA-384 pass over (signature || digest) — romguard does
// not implement the RFC 8554 Winternitz chain since no ecosystem LMS
// package exists in the corpus to validate this against; it is scoped
// to the one observable the verifier needs (a value that is a
// deterministic function of (sig, digest); pub is not read) that the
// test harness double can exercise with known-good vectors.
func (f *HardwareFacade) LmsVerify(digest [48]byte, pub bundle.LmsPublicKey, sig bundle.LmsSignature) ([48]byte, error) {
	h := sha512.New384()
	h.Write(sig)
	h.Write(digest[:])
	var out [48]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func (f *HardwareFacade) Mldsa87Keypair(ctx context.Context, seedSlot keyvault.SlotID) (bundle.MldsaPublicKey, error) {
	var pub bundle.MldsaPublicKey
	seed, err := f.Vault.Read(seedSlot, keyvault.UsageMldsaKeygenSeed)
	if err != nil {
		return pub, wrap("mldsa87_keypair", err)
	}
	var seed32 [32]byte
	copy(seed32[:], seed)
	pk, _ := mldsa87.NewKeyFromSeed(&seed32)
	packed, err := pk.MarshalBinary()
	if err != nil {
		return pub, wrap("mldsa87_keypair", err)
	}
	copy(pub.Bytes[:], packed)
	return pub, nil
}

func (f *HardwareFacade) Mldsa87Sign(ctx context.Context, seedSlot keyvault.SlotID, pub bundle.MldsaPublicKey, digest [64]byte) (bundle.MldsaSignature, error) {
	var sig bundle.MldsaSignature
	seed, err := f.Vault.Read(seedSlot, keyvault.UsageMldsaKeygenSeed)
	if err != nil {
		return sig, wrap("mldsa87_sign", err)
	}
	var seed32 [32]byte
	copy(seed32[:], seed)
	_, sk := mldsa87.NewKeyFromSeed(&seed32)
	out := make([]byte, mldsa87.SignatureSize)
	mldsa87.SignTo(sk, digest[:], nil, false, out)
	copy(sig.Bytes[:], out)
	return sig, nil
}

func (f *HardwareFacade) Mldsa87Verify(pub bundle.MldsaPublicKey, msg [64]byte, sig bundle.MldsaSignature) (MldsaVerifyResult, error) {
	var pk mldsa87.PublicKey
	if err := pk.UnmarshalBinary(pub.Bytes[:]); err != nil {
		return MldsaSigVerifyFailed, wrap("mldsa87_verify", err)
	}
	if mldsa87.Verify(&pk, msg[:], nil, sig.Bytes[:]) {
		return MldsaSuccess, nil
	}
	return MldsaSigVerifyFailed, nil
}

func (f *HardwareFacade) TrngDraw(dst []byte) error {
	_, err := rand.Read(dst)
	return wrap("trng_draw", err)
}
