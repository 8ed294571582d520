package dice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/engine"
	"github.com/openroot/romguard/pkg/keyvault"
	"github.com/openroot/romguard/pkg/x509tbs"
)

func TestDeriveLayerRootProducesUnsignedIdentity(t *testing.T) {
	vault := keyvault.New()
	eng := engine.NewHardwareFacade(vault)
	ctx := context.Background()

	uds := make([]byte, 48)
	for i := range uds {
		uds[i] = byte(i + 1)
	}
	require.NoError(t, vault.Write(0, uds, keyvault.UsageHmacKey))

	slots := Slots{ParentCDI: 0, CDI: 1, EccTemp: 2, EccPriv: 3, MldsaSeed: 4}
	params := Params{
		Label:        "idevid",
		ParentIsRoot: true,
		Fields:       x509tbs.Fields{Lifecycle: 1},
	}

	ident, err := DeriveLayer(ctx, eng, vault, slots, params)
	require.NoError(t, err)
	require.NotZero(t, ident.EccPub.X)
	require.NotZero(t, ident.MldsaPub.Bytes)
	require.Equal(t, bundle.EccSignature{}, ident.EccSignature)
	require.NotEmpty(t, ident.TBS)
}

func TestDeriveLayerChildIsSignedByParentAndVerifies(t *testing.T) {
	vault := keyvault.New()
	eng := engine.NewHardwareFacade(vault)
	ctx := context.Background()

	uds := make([]byte, 48)
	for i := range uds {
		uds[i] = byte(i + 9)
	}
	require.NoError(t, vault.Write(0, uds, keyvault.UsageHmacKey))

	rootSlots := Slots{ParentCDI: 0, CDI: 1, EccTemp: 2, EccPriv: 3, MldsaSeed: 4}
	root, err := DeriveLayer(ctx, eng, vault, rootSlots, Params{
		Label:        "idevid",
		ParentIsRoot: true,
		Fields:       x509tbs.Fields{Lifecycle: 1},
	})
	require.NoError(t, err)

	childSlots := Slots{
		ParentCDI:      1,
		CDI:            10,
		EccTemp:        11,
		EccPriv:        12,
		MldsaSeed:      13,
		ParentEccKey:   3,
		ParentMldsaKey: 4,
	}
	child, err := DeriveLayer(ctx, eng, vault, childSlots, Params{
		Label:        "ldevid",
		ParentIsRoot: false,
		IssuerSN:     root.SubjectSN,
		ParentEccPub: root.EccPub,
		Fields:       x509tbs.Fields{Lifecycle: 1},
	})
	require.NoError(t, err)
	require.NotEqual(t, bundle.EccSignature{}, child.EccSignature)

	digest, err := eng.Sha384Digest(child.TBS, 0, uint64(len(child.TBS)))
	require.NoError(t, err)
	ok, err := eng.Ecc384Verify(root.EccPub, digest, child.EccSignature)
	require.NoError(t, err)
	require.True(t, ok)
}
