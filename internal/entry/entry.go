// Package entry defines the single stored message unit of a Log.
package entry

import "github.com/adred-codev/chanhistory/internal/mtag"

// Entry is one stored message. It lives in exactly one Log's doubly-linked
// sequence at a time; Prev/Next are owned by that Log.
type Entry struct {
	Prev, Next *Entry

	T    int64 // seconds since epoch, taken from the "time" tag
	Line string
	Tags []mtag.Tag
}

// Clone returns a deep copy of e with fresh linkage (Prev/Next nil),
// suitable for handing to a caller that may outlive the live log.
func (e *Entry) Clone() *Entry {
	return &Entry{
		T:    e.T,
		Line: e.Line,
		Tags: mtag.Clone(e.Tags),
	}
}
