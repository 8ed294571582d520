// Package translog implements the append-only, hash-chained logging
// primitives: PCR extension, and a Chain log in which each entry's
// digest folds in the previous one and the index is monotonic. There
// is no network path in a boot ROM, so only the log
// structure is kept, not any transparency-log transport (see
// DESIGN.md).
package translog

import "crypto/sha512"

// PCR is a single extend-only hash accumulator. PCR0 (current boot),
// PCR1 (boot journey), and PCR31 (stash measurements) are all
// instances of this type.
type PCR struct {
	value [48]byte
	locked bool
}

// Value returns the current accumulated value.
func (p *PCR) Value() [48]byte { return p.value }

// Locked reports whether Extend has been disabled for this register.
func (p *PCR) Locked() bool { return p.locked }

// Extend folds data into the accumulator: next = SHA384(current ‖ data).
// It is a no-op error if the PCR has been locked: PCRs are locked
// before handoff and immutable afterward.
func (p *PCR) Extend(data []byte) error {
	if p.locked {
		return errPCRLocked
	}
	h := sha512.New384()
	h.Write(p.value[:])
	h.Write(data)
	copy(p.value[:], h.Sum(nil))
	return nil
}

// Lock permanently disables further extension.
func (p *PCR) Lock() { p.locked = true }

var errPCRLocked = pcrLockedError{}

type pcrLockedError struct{}

func (pcrLockedError) Error() string { return "translog: PCR is locked" }

// Bank groups the three PCRs the ROM core extends: PCR0 (current
// boot), PCR1 (boot journey, extended the same way but never reset
// across resets), and PCR31 (stash-measurement accumulator).
type Bank struct {
	PCR0, PCR1, PCR31 PCR
}

func NewBank() *Bank { return &Bank{} }

// ExtendBoot extends PCR0 and PCR1 with the same vector, the step both
// cold and update reset perform.
func (b *Bank) ExtendBoot(vectors ...[]byte) error {
	for _, v := range vectors {
		if err := b.PCR0.Extend(v); err != nil {
			return err
		}
		if err := b.PCR1.Extend(v); err != nil {
			return err
		}
	}
	return nil
}

// LockAll locks PCR0, PCR1, and PCR31 before handoff.
func (b *Bank) LockAll() {
	b.PCR0.Lock()
	b.PCR1.Lock()
	b.PCR31.Lock()
}

// Entry is one hash-chained log record. (pkg/persist's fuse, PCR and
// measurement logs are plain slices, not Chains.) Each entry's Digest
// folds in the previous entry's digest so the sequence cannot be
// reordered or truncated without detection — the property this
// package keeps from the rekor transparency-log shape.
type Entry struct {
	Index  uint32
	Digest [48]byte
	Prev   [48]byte
}

// Chain is an append-only sequence of Entry records.
type Chain struct {
	entries []Entry
}

// Append computes the next entry's digest from data folded with the
// previous entry's digest (or the zero value for the first entry) and
// appends it.
func (c *Chain) Append(data []byte) Entry {
	var prev [48]byte
	if n := len(c.entries); n > 0 {
		prev = c.entries[n-1].Digest
	}
	h := sha512.New384()
	h.Write(prev[:])
	h.Write(data)
	var e Entry
	e.Index = uint32(len(c.entries))
	e.Prev = prev
	copy(e.Digest[:], h.Sum(nil))
	c.entries = append(c.entries, e)
	return e
}

func (c *Chain) Entries() []Entry { return c.entries }

func (c *Chain) Len() int { return len(c.entries) }
