// Package trustroot models the device's root-of-trust state as a
// monotonically versioned object, the same shape
// theupdateframework/go-tuf gives a TUF root: a version number that
// may only increase, and a set of trusted keys/thresholds that may
// only be replaced by a root signed at a higher version. Here the
// "root" is the fuse-anchored vendor/owner key material plus the
// SVN floor, and "version" is the firmware SVN itself — rollback is
// rejected the same way an old TUF root is rejected, by refusing to
// move the version backwards.
package trustroot

import (
	"context"
	"time"

	"github.com/openroot/romguard/pkg/fuse"
)

// defaultResyncPeriod is used when none is attached to a context,
// mirroring pkg/tuf/context.go's FromContextOrDefaults fallback.
const defaultResyncPeriod = 5 * time.Minute

type resyncKey struct{}

// WithResyncPeriod attaches a trust-root resync period to ctx, the
// same role pkg/tuf/context.go's ToContext plays for the trust-root
// reconciler. No romguard command attaches one today, so
// ResyncPeriodFromContext falls back to the default there.
func WithResyncPeriod(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, resyncKey{}, d)
}

// ResyncPeriodFromContext returns the attached period or the default.
func ResyncPeriodFromContext(ctx context.Context) time.Duration {
	if d, ok := ctx.Value(resyncKey{}).(time.Duration); ok {
		return d
	}
	return defaultResyncPeriod
}

// Root is the versioned root-of-trust snapshot: fuses plus the
// currently accepted SVN floor, the two things anti-rollback depends
// on.
type Root struct {
	Fuses *fuse.Bank

	// Version is the highest fw_svn ever accepted; a new root may only
	// raise it. (The data vault's FwMinSvn moves the other way: update
	// reset may lower it but never raises it — see pkg/keyladder for the
	// corresponding key material.)
	Version uint32
}

func New(fuses *fuse.Bank) *Root {
	return &Root{Fuses: fuses}
}

// Accept validates that svn does not move the root backwards and, if
// so, raises Version. It returns false without mutating Root when svn
// would roll the version back — the TUF-root-version invariant this
// package is grounded on.
func (r *Root) Accept(svn uint32) bool {
	if svn < r.Version {
		return false
	}
	r.Version = svn
	return true
}
