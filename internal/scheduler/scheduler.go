// Package scheduler implements the incremental expiry scheduler of
// spec.md §4.4: a single cursor, owned by the caller, that sweeps the object store
// in fixed-size slices per tick so that no single tick stalls the host.
// Grounded on the history_mem_clean EVENT in the original
// history_backend_mem.c.
package scheduler

import (
	"time"

	"github.com/adred-codev/chanhistory/internal/historylog"
	"github.com/adred-codev/chanhistory/internal/objectstore"
)

// Defaults matching HISTORY_SPREAD / HISTORY_MAX_OFF_SECS in the original.
const (
	DefaultSpread     = 60
	DefaultMaxOffSecs = 300
)

// CleanPerLoop returns ceil(objectstore.Buckets / spread), the number of
// buckets visited per tick.
func CleanPerLoop(spread int) int {
	if spread <= 0 {
		spread = DefaultSpread
	}
	return (objectstore.Buckets + spread - 1) / spread
}

// TickInterval returns the recommended timer period for the given spread,
// i.e. maxOffSecs / spread (5s with defaults).
func TickInterval(spread, maxOffSecs int) time.Duration {
	if spread <= 0 {
		spread = DefaultSpread
	}
	if maxOffSecs <= 0 {
		maxOffSecs = DefaultMaxOffSecs
	}
	return time.Duration(maxOffSecs/spread) * time.Second
}

// Cursor is the expiry scheduler's single piece of state: the next bucket
// index to visit. It is a field of the owning context, not a package-level
// static (spec.md §9).
type Cursor struct {
	next int
}

// Flush is called once per dirty Log visited during a sweep, only when
// persistence is enabled. Errors are the caller's concern to log; the
// scheduler itself never aborts a sweep on a flush failure (spec.md §7:
// disk errors are recovered locally).
type Flush func(l *historylog.Log) error

// Sweep visits CleanPerLoop(spread) buckets starting at the cursor,
// wrapping modulo objectstore.Buckets, calling Cleanup on every Log found
// and, if flush is non-nil, flushing every dirty one.
func (c *Cursor) Sweep(store *objectstore.Store, spread int, now time.Time, flush Flush) {
	n := CleanPerLoop(spread)
	for i := 0; i < n; i++ {
		for _, l := range store.Bucket(c.next) {
			l.Cleanup(now)
			if flush != nil && l.Dirty {
				_ = flush(l)
			}
		}
		c.next = (c.next + 1) % objectstore.Buckets
	}
}
