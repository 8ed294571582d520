// Package keyladder implements the firmware key ladder: a chain of
// HMAC derivations rooted in LDevID's CDI, whose length is tied to the
// rolling SVN window so that rolling back to a lower SVN cannot
// re-derive the keys a higher-SVN firmware used.
package keyladder

import (
	"context"
	"fmt"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/engine"
	"github.com/openroot/romguard/pkg/keyvault"
)

// Ladder is the chain state: a step count and the current derived
// value. The value lives in a key-vault slot, never a bare struct
// field, so every step goes through the same write-once/read-gated
// key-separation discipline the DICE layers use rather than a raw
// crypto/sha512 call over in-process bytes.
type Ladder struct {
	eng   engine.Facade
	vault *keyvault.Vault

	seedSlot  keyvault.SlotID
	valueSlot keyvault.SlotID

	length uint32
}

// New constructs a ladder rooted in seedSlot (holding the LDevID
// CDI-derived seed): valueSlot is seeded with seedSlot's own bytes as
// the chain's starting value, with no steps applied yet.
func New(eng engine.Facade, vault *keyvault.Vault, seedSlot, valueSlot keyvault.SlotID) (*Ladder, error) {
	seed, err := vault.Read(seedSlot, keyvault.UsageHmacKey)
	if err != nil {
		return nil, fmt.Errorf("keyladder: reading seed slot: %w", err)
	}
	if err := vault.Write(valueSlot, seed, keyvault.UsageHmacKey); err != nil {
		return nil, fmt.Errorf("keyladder: seeding value slot: %w", err)
	}
	return &Ladder{eng: eng, vault: vault, seedSlot: seedSlot, valueSlot: valueSlot}, nil
}

func (l *Ladder) Length() uint32 { return l.length }

// Value reads the chain's current derived value out of its vault slot.
func (l *Ladder) Value() ([]byte, error) {
	return l.vault.Read(l.valueSlot, keyvault.UsageHmacKey)
}

// step derives the next chain value as HMAC-384(seed, current_value),
// erasing the slot holding the old value before the vault will accept
// the new one.
func (l *Ladder) step(ctx context.Context) error {
	cur, err := l.vault.Read(l.valueSlot, keyvault.UsageHmacKey)
	if err != nil {
		return fmt.Errorf("keyladder: reading chain value: %w", err)
	}
	l.vault.Erase(l.valueSlot)
	if err := l.eng.Hmac(ctx, engine.Hmac384, engine.SlotKey(l.seedSlot), cur, l.valueSlot, keyvault.UsageHmacKey); err != nil {
		return fmt.Errorf("keyladder: hmac step: %w", err)
	}
	l.length++
	return nil
}

// InitCold builds the cold-boot chain: length = MAX_FIRMWARE_SVN -
// fw_svn. A higher fw_svn therefore yields a shorter chain.
func (l *Ladder) InitCold(ctx context.Context, fwSvn uint32) error {
	if fwSvn > bundle.MaxFirmwareSvn {
		return fmt.Errorf("keyladder: fw_svn %d exceeds MAX_FIRMWARE_SVN %d", fwSvn, bundle.MaxFirmwareSvn)
	}
	target := bundle.MaxFirmwareSvn - fwSvn
	for l.length < target {
		if err := l.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ExtendOnUpdate lengthens the chain by the decrement in min-SVN on an
// update reset: a longer chain corresponds to a lower min-SVN, and the
// chain is never shortened.
func (l *Ladder) ExtendOnUpdate(ctx context.Context, oldMinSvn, newMinSvn uint32) error {
	if newMinSvn > oldMinSvn {
		return fmt.Errorf("keyladder: new min-svn %d must not exceed old min-svn %d", newMinSvn, oldMinSvn)
	}
	steps := oldMinSvn - newMinSvn
	for i := uint32(0); i < steps; i++ {
		if err := l.step(ctx); err != nil {
			return err
		}
	}
	return nil
}
