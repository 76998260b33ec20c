// Package replay implements the filtered replay operation of spec.md §4.3:
// a two-pass materialization of a deep-copied slice of a Log under
// combined line/time constraints. Grounded on hbm_history_request and
// duplicate_log_line in the original history_backend_mem.c.
package replay

import (
	"time"

	"github.com/adred-codev/chanhistory/internal/entry"
	"github.com/adred-codev/chanhistory/internal/historylog"
)

// Filter tightens the replay window relative to the Log's own limits.
// Zero means "no additional constraint" on that axis.
type Filter struct {
	LastSeconds int64
	LastLines   int
}

// Result is a deep-copied, freshly-linked slice of a Log, oldest-first.
// The caller may retain or discard it without touching the live log.
type Result struct {
	Object  string
	Entries []*entry.Entry
}

// Request computes redline = now - min(filter.LastSeconds or ∞, log.MaxTime),
// then returns the entries at or after redline, keeping only the most
// recent filter.LastLines of them (or all of them if LastLines is zero).
//
// This does not re-sort: entries are walked and returned in the Log's own
// storage order (oldest-first as linked), which is not guaranteed to be
// time-sorted if the host ever fed "time" tags out of order on Add (see
// historylog.Log.Add and spec.md §9's second open question).
func Request(l *historylog.Log, f Filter, now time.Time) *Result {
	if l == nil {
		return nil
	}

	window := l.MaxTime
	if f.LastSeconds != 0 && f.LastSeconds < window {
		window = f.LastSeconds
	}
	redline := now.Unix() - window

	linesSendable := 0
	for e := l.Head(); e != nil; e = e.Next {
		if e.T >= redline {
			linesSendable++
		}
	}

	linesToSkip := 0
	if f.LastLines != 0 && linesSendable > f.LastLines {
		linesToSkip = linesSendable - f.LastLines
	}

	r := &Result{Object: l.Name}
	cnt := 0
	for e := l.Head(); e != nil; e = e.Next {
		if e.T >= redline {
			cnt++
			if cnt > linesToSkip {
				r.Entries = append(r.Entries, e.Clone())
			}
		}
	}
	return r
}
