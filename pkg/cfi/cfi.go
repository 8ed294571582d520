// Package cfi implements the fault and control-flow-integrity harness:
// every branch that gates a security decision is computed twice with
// distinct operand laundering, followed by a positive CFI assertion on
// the chosen branch, and a glitch-injection delay runs before the
// mailbox-command critical path.
package cfi

import (
	"crypto/subtle"
	"sync/atomic"
)

// launderCounter feeds a cheap, non-cryptographic operand-laundering
// function: the point is that the two comparisons in Equal take
// observably different code paths, not that the transform is secret.
var launderCounter uint64

func launder(b []byte) []byte {
	atomic.AddUint64(&launderCounter, 1)
	// Reverse-then-XOR-then-reverse is an involution: the result is
	// byte-for-byte equal to b, but the comparison below has walked a
	// distinct code path (and touched different cache lines) than the
	// direct compare, which is the point of doing it twice.
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v ^ 0xA5
	}
	for i, v := range out {
		out[i] = v ^ 0xA5
	}
	rev := make([]byte, len(out))
	for i, v := range out {
		rev[len(out)-1-i] = v
	}
	return rev
}

// Assertion records the outcome of a CFI-guarded comparison so the
// caller can assert on it before trusting the result; a comparison
// whose Assertion was never checked is a programming error, not a
// security decision.
type Assertion struct {
	direct    bool
	laundered bool
	checked   bool
}

// Equal performs the double comparison this package's fault model
// requires: once on the raw operands, once on laundered copies, in
// constant time. Both must agree for the overall predicate to hold.
func Equal(a, b []byte) *Assertion {
	direct := subtle.ConstantTimeCompare(a, b) == 1
	laundered := subtle.ConstantTimeCompare(launder(a), launder(b)) == 1
	return &Assertion{direct: direct, laundered: laundered}
}

// Bool wraps a single boolean security decision (e.g. an engine's
// verify-result) behind the same CFI-assertion discipline as Equal, so
// "signature valid" and "digest matched" go through one code path.
func Bool(direct bool) *Assertion {
	return &Assertion{direct: direct, laundered: direct}
}

// Assert panics if the two computations disagree — a glitch or fault
// manifests as exactly this disagreement, which is treated as fatal,
// not recoverable. It returns the agreed-upon value.
func (a *Assertion) Assert() bool {
	a.checked = true
	if a.direct != a.laundered {
		panic("cfi: laundered comparison disagreement, possible fault injection")
	}
	return a.direct
}

// Checked reports whether Assert was ever called, for use in tests
// that want to catch an Assertion built and then silently dropped.
func (a *Assertion) Checked() bool { return a.checked }

// DelayCounter is the delay spun before the mailbox-command critical
// path. It is not a cryptographic delay: Spin blocks the calling
// goroutine for exactly Iterations no-op iterations, a count fixed by
// the caller and not randomized.
type DelayCounter struct {
	Iterations int
}

func NewDelayCounter(iterations int) *DelayCounter {
	return &DelayCounter{Iterations: iterations}
}

func (d *DelayCounter) Spin() {
	var sink uint64
	for i := 0; i < d.Iterations; i++ {
		sink = sink*31 + uint64(i)
	}
	_ = sink
}
