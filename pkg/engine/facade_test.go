package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openroot/romguard/pkg/keyvault"
)

func TestEcc384KeypairSignVerifyRoundTrip(t *testing.T) {
	vault := keyvault.New()
	f := NewHardwareFacade(vault)
	ctx := context.Background()

	seed := make([]byte, 48)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	require.NoError(t, vault.Write(0, seed, keyvault.UsageEccKeygenSeed))

	pub, err := f.Ecc384Keypair(ctx, 0, 1)
	require.NoError(t, err)

	digest, err := f.Sha384Digest([]byte("message to sign"), 0, len("message to sign"))
	require.NoError(t, err)

	sig, err := f.Ecc384Sign(ctx, 1, pub, digest)
	require.NoError(t, err)

	ok, err := f.Ecc384Verify(pub, digest, sig)
	require.NoError(t, err)
	require.True(t, ok)

	tamperedDigest := digest
	tamperedDigest[0] ^= 0xFF
	ok, err = f.Ecc384Verify(pub, tamperedDigest, sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHmacKDFIsDeterministicForSameLabel(t *testing.T) {
	vault := keyvault.New()
	f := NewHardwareFacade(vault)
	ctx := context.Background()

	require.NoError(t, vault.Write(0, []byte("root-secret-material"), keyvault.UsageHmacKey))

	require.NoError(t, f.HmacKDF(ctx, Hmac384, 0, "label-a", nil, 1, keyvault.UsageHmacKey))
	out1, err := vault.Read(1, keyvault.UsageHmacKey)
	require.NoError(t, err)
	vault.Erase(1)

	require.NoError(t, f.HmacKDF(ctx, Hmac384, 0, "label-a", nil, 1, keyvault.UsageHmacKey))
	out2, err := vault.Read(1, keyvault.UsageHmacKey)
	require.NoError(t, err)

	require.Equal(t, out1, out2)
}

func TestHmacKDFDiffersByLabel(t *testing.T) {
	vault := keyvault.New()
	f := NewHardwareFacade(vault)
	ctx := context.Background()

	require.NoError(t, vault.Write(0, []byte("root-secret-material"), keyvault.UsageHmacKey))

	require.NoError(t, f.HmacKDF(ctx, Hmac384, 0, "label-a", nil, 1, keyvault.UsageHmacKey))
	outA, err := vault.Read(1, keyvault.UsageHmacKey)
	require.NoError(t, err)
	vault.Erase(1)

	require.NoError(t, f.HmacKDF(ctx, Hmac384, 0, "label-b", nil, 1, keyvault.UsageHmacKey))
	outB, err := vault.Read(1, keyvault.UsageHmacKey)
	require.NoError(t, err)

	require.NotEqual(t, outA, outB)
}

func TestSha384DigestRejectsOutOfRangeSlice(t *testing.T) {
	f := NewHardwareFacade(keyvault.New())
	_, err := f.Sha384Digest([]byte("short"), 0, 100)
	require.Error(t, err)
}
