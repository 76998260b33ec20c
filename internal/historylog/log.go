// Package historylog implements the per-object bounded history log: a
// doubly-linked sequence of entries with line-count and age limits enforced
// on add and on periodic cleanup. Grounded on hbm_history_add_line,
// hbm_history_del_line, hbm_history_cleanup and hbm_history_set_limit in
// the original UnrealIRCd history_backend_mem.c module.
package historylog

import (
	"time"

	"github.com/adred-codev/chanhistory/internal/entry"
	"github.com/adred-codev/chanhistory/internal/mtag"
)

// DefaultMaxLines and DefaultMaxTime are the release-mode fallback limits
// applied when Add is called on a Log whose limits were never set (the
// "NoLimit" contract, spec.md §4.2/§7).
const (
	DefaultMaxLines = 50
	DefaultMaxTime  = 86400
)

// Log is one object's history: entries plus its retention limits.
type Log struct {
	Name string

	head, tail *entry.Entry
	NumLines   int
	OldestT    int64

	MaxLines int
	MaxTime  int64

	Dirty bool
}

// New returns an empty Log for the given canonical name, limits unset
// (mirrors hbm_find_or_add_object's freshly-inserted state).
func New(name string) *Log {
	return &Log{Name: name}
}

// NoLimitWarning is returned via the warn callback when Add degrades a
// zero-limit Log to the release defaults instead of aborting.
type NoLimitWarning struct {
	Object string
}

func (w NoLimitWarning) Error() string {
	return "history add on object with no limit set: " + w.Object
}

// Add appends one line with its message tags to the tail of the log,
// synthesizing a "time" tag if the caller didn't supply one, then enforces
// max_lines by evicting the head if necessary. strictMode mirrors the
// original's DEBUGMODE abort(); when false (the release-mode default) a
// zero-limit log is given the default limits and warn is called.
//
// Returns a non-nil error only when strictMode is true and the log has no
// limit configured — the Go substitute for the original's abort().
func (l *Log) Add(tags []mtag.Tag, line string, now time.Time, strictMode bool, warn func(error)) error {
	if l.MaxLines == 0 {
		w := NoLimitWarning{Object: l.Name}
		if strictMode {
			return w
		}
		if warn != nil {
			warn(w)
		}
		l.MaxLines = DefaultMaxLines
		l.MaxTime = DefaultMaxTime
	}

	fullTags, t := mtag.EnsureTime(tags, now)
	e := &entry.Entry{
		T:    t,
		Line: line,
		Tags: mtag.Clone(fullTags),
	}

	l.appendTail(e)
	l.Dirty = true

	if l.NumLines > l.MaxLines {
		l.del(l.head)
	}
	return nil
}

func (l *Log) appendTail(e *entry.Entry) {
	if l.tail != nil {
		l.tail.Next = e
		e.Prev = l.tail
		l.tail = e
	} else {
		l.head, l.tail = e, e
	}
	l.NumLines++
	if e.T < l.OldestT || l.OldestT == 0 {
		l.OldestT = e.T
	}
}

// del unlinks e from the sequence. oldest_t is not recomputed here; callers
// that delete in bulk recompute it themselves in the same pass (spec.md
// §4.2 "the caller is responsible for doing so in a single pass").
func (l *Log) del(e *entry.Entry) {
	if e.Prev != nil {
		e.Prev.Next = e.Next
	}
	if e.Next != nil {
		e.Next.Prev = e.Prev
	}
	if l.head == e {
		l.head = e.Next
	}
	if l.tail == e {
		l.tail = e.Prev
	}
	l.Dirty = true
	l.NumLines--
}

// Cleanup performs the two-pass time-then-count enforcement described in
// spec.md §4.2: age eviction first, then count eviction, each pass
// recomputing OldestT only if it actually walks the list.
func (l *Log) Cleanup(now time.Time) {
	redline := now.Unix() - l.MaxTime

	if l.OldestT < redline {
		l.OldestT = 0
		var next *entry.Entry
		for e := l.head; e != nil; e = next {
			next = e.Next
			if e.T < redline {
				l.del(e)
				continue
			}
			if l.OldestT == 0 || e.T < l.OldestT {
				l.OldestT = e.T
			}
		}
	}

	if l.NumLines > l.MaxLines {
		l.OldestT = 0
		var next *entry.Entry
		for e := l.head; e != nil; e = next {
			next = e.Next
			if l.NumLines > l.MaxLines {
				l.del(e)
				continue
			}
			if l.OldestT == 0 || e.T < l.OldestT {
				l.OldestT = e.T
			}
		}
	}
}

// SetLimit overwrites the retention limits and immediately re-enforces
// them via Cleanup.
func (l *Log) SetLimit(maxLines int, maxTime int64, now time.Time) {
	l.MaxLines = maxLines
	l.MaxTime = maxTime
	l.Cleanup(now)
}

// Destroy frees every entry unconditionally (used by the public Destroy
// operation, which also removes the Log from the ObjectStore).
func (l *Log) Destroy() {
	l.head, l.tail = nil, nil
	l.NumLines = 0
	l.OldestT = 0
	l.Dirty = false
}

// Head returns the earliest entry, or nil if the log is empty. Exposed for
// the replay and persistence packages, which need a head-to-tail walk.
func (l *Log) Head() *entry.Entry { return l.head }

// Tail returns the latest entry, or nil if the log is empty.
func (l *Log) Tail() *entry.Entry { return l.tail }
