// Package dice implements the DICE layer derivation shared by IDevID,
// LDevID, and FMC-Alias: one driver, parameterized by
// label/context/parent, performs the same four steps for all three
// layers.
package dice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/engine"
	"github.com/openroot/romguard/pkg/keyvault"
	"github.com/openroot/romguard/pkg/x509tbs"
)

// Slots names the key-vault slots a single layer derivation occupies.
type Slots struct {
	ParentCDI    keyvault.SlotID
	CDI          keyvault.SlotID
	EccTemp      keyvault.SlotID
	EccPriv      keyvault.SlotID
	MldsaSeed    keyvault.SlotID
	ParentEccKey keyvault.SlotID // parent's ECC private slot, for signing
	ParentMldsaKey keyvault.SlotID
}

// Identity is everything a derived layer produces.
type Identity struct {
	EccPub   bundle.EccPublicKey
	MldsaPub bundle.MldsaPublicKey

	SubjectSN    [64]byte
	SubjectKeyID [20]byte

	EccSignature   bundle.EccSignature
	MldsaSignature bundle.MldsaSignature

	TBS []byte
}

// Params drives one layer's derivation.
type Params struct {
	Label       string
	Context     []byte // optional layer-specific measurement
	ParentIsRoot bool   // true only for IDevID, derived from UDS rather than a CDI slot

	IssuerSN [64]byte

	// ParentEccPub is the parent layer's already-derived ECC public key,
	// threaded through by the caller rather than re-read from the vault
	// (the vault holds only the private scalar). Unused when
	// ParentIsRoot is true.
	ParentEccPub bundle.EccPublicKey

	Fields x509tbs.Fields // pre-filled with everything except Subject*/pub
}

// DeriveLayer runs the four steps shared by every DICE layer: CDI
// derivation, ECC+MLDSA keypair derivation, subject SN/KeyID
// computation, and certificate emission, returning the Identity or the
// first error encountered. On any error, sensitive buffers are
// zeroized before returning.
func DeriveLayer(ctx context.Context, eng engine.Facade, vault *keyvault.Vault, slots Slots, p Params) (*Identity, error) {
	// Step 1: CDI derivation.
	cdiUsage := keyvault.UsageHmacKey | keyvault.UsageEccKeygenSeed | keyvault.UsageMldsaKeygenSeed
	if err := eng.HmacKDF(ctx, engine.Hmac512, slots.ParentCDI, p.Label, p.Context, slots.CDI, cdiUsage); err != nil {
		return nil, fmt.Errorf("dice: cdi derivation for %q: %w", p.Label, err)
	}

	// Step 2: ECC keypair.
	if err := eng.HmacKDF(ctx, engine.Hmac384, slots.CDI, p.Label+"-ecc-keygen", nil, slots.EccTemp, keyvault.UsageEccKeygenSeed); err != nil {
		return nil, fmt.Errorf("dice: ecc seed derivation for %q: %w", p.Label, err)
	}
	eccPub, err := eng.Ecc384Keypair(ctx, slots.EccTemp, slots.EccPriv)
	vault.Erase(slots.EccTemp)
	if err != nil {
		vault.Erase(slots.EccPriv)
		return nil, fmt.Errorf("dice: ecc keypair for %q: %w", p.Label, err)
	}

	// Step 2: MLDSA keypair.
	if err := eng.HmacKDF(ctx, engine.Hmac384, slots.CDI, p.Label+"-mldsa-keygen", nil, slots.MldsaSeed, keyvault.UsageMldsaKeygenSeed); err != nil {
		vault.Erase(slots.EccPriv)
		return nil, fmt.Errorf("dice: mldsa seed derivation for %q: %w", p.Label, err)
	}
	mldsaPub, err := eng.Mldsa87Keypair(ctx, slots.MldsaSeed)
	if err != nil {
		vault.Erase(slots.EccPriv)
		return nil, fmt.Errorf("dice: mldsa keypair for %q: %w", p.Label, err)
	}

	// Step 3: subject SN and key ID.
	subjectSN, subjectKeyID := subjectIdentity(eccPub, mldsaPub)

	ident := &Identity{EccPub: eccPub, MldsaPub: mldsaPub, SubjectSN: subjectSN, SubjectKeyID: subjectKeyID}

	// Step 4: certificate emission.
	fields := p.Fields
	fields.SubjectSN = subjectSN
	fields.IssuerSN = p.IssuerSN
	fields.SubjectKeyID = subjectKeyID
	fields.SubjectPub = append(append([]byte{}, eccPub.X[:]...), mldsaPub.Bytes[:64]...)
	tbs := x509tbs.Build(fields)
	ident.TBS = tbs

	var digest48 [48]byte
	d48, err := eng.Sha384Digest(tbs, 0, uint64(len(tbs)))
	if err != nil {
		vault.Erase(slots.EccPriv)
		return nil, fmt.Errorf("dice: tbs digest for %q: %w", p.Label, err)
	}
	digest48 = d48

	if !p.ParentIsRoot {
		sig, err := eng.Ecc384Sign(ctx, slots.ParentEccKey, p.ParentEccPub, digest48)
		if err != nil {
			vault.Erase(slots.EccPriv)
			return nil, fmt.Errorf("dice: ecc signature for %q: %w", p.Label, err)
		}
		ident.EccSignature = sig
		zeroizeEccSig(&sig)

		var digest64 [64]byte
		d64, err := eng.Sha512Digest(tbs, 0, uint64(len(tbs)))
		if err != nil {
			vault.Erase(slots.EccPriv)
			return nil, fmt.Errorf("dice: tbs sha512 digest for %q: %w", p.Label, err)
		}
		digest64 = d64
		mldsaSig, err := eng.Mldsa87Sign(ctx, slots.ParentMldsaKey, bundle.MldsaPublicKey{}, digest64)
		if err != nil {
			vault.Erase(slots.EccPriv)
			return nil, fmt.Errorf("dice: mldsa signature for %q: %w", p.Label, err)
		}
		ident.MldsaSignature = mldsaSig
		zeroizeMldsaSig(&mldsaSig)
	}

	return ident, nil
}

func subjectIdentity(eccPub bundle.EccPublicKey, mldsaPub bundle.MldsaPublicKey) ([64]byte, [20]byte) {
	h := sha256.New()
	h.Write(eccPub.X[:])
	h.Write(eccPub.Y[:])
	h.Write(mldsaPub.Bytes[:])
	sum := h.Sum(nil)

	var sn [64]byte
	copy(sn[:], hex.EncodeToString(sum))

	var ski [20]byte
	copy(ski[:], sum[:20])

	return sn, ski
}

func zeroizeEccSig(sig *bundle.EccSignature) {
	for i := range sig.R {
		sig.R[i] = 0
	}
	for i := range sig.S {
		sig.S[i] = 0
	}
}

func zeroizeMldsaSig(sig *bundle.MldsaSignature) {
	for i := range sig.Bytes {
		sig.Bytes[i] = 0
	}
}
