// Package mtag holds the message tag type carried alongside every stored
// history line, and the helpers used to deep-copy a tag chain on the way
// into and out of a Log. Parsing tags off the wire is the host's job; this
// package only knows how to copy and synthesize them.
package mtag

import "time"

// Tag is a single (name, optional value) pair, analogous to an IRCv3
// message tag. Value is empty when the tag carries no value.
type Tag struct {
	Name  string
	Value string
	// HasValue distinguishes a tag with an empty-string value from one
	// with no value at all (the wire format's "value may be null").
	HasValue bool
}

// TimeLayout is the RFC 3339 UTC millisecond form the backend synthesizes
// a "time" tag in when the caller didn't supply one.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Clone deep-copies a tag chain so the receiver owns independent storage.
func Clone(in []Tag) []Tag {
	if len(in) == 0 {
		return nil
	}
	out := make([]Tag, len(in))
	copy(out, in)
	return out
}

// EnsureTime returns tags with exactly one "time" tag present, synthesizing
// one from now (UTC) if missing or malformed, and the unix-seconds value of
// that tag either way. A malformed existing "time" tag (one without a
// value, or one that does not parse) is replaced, not kept alongside the
// synthesized one.
func EnsureTime(tags []Tag, now time.Time) ([]Tag, int64) {
	for i, t := range tags {
		if t.Name == "time" {
			if t.HasValue {
				if ts, err := time.Parse(TimeLayout, t.Value); err == nil {
					return tags, ts.Unix()
				}
			}
			// Malformed time tag: drop it and synthesize a replacement
			// below, rather than leaving a second "time" tag in the list.
			out := make([]Tag, 0, len(tags))
			out = append(out, tags[:i]...)
			out = append(out, tags[i+1:]...)
			return appendSynthesizedTime(out, now)
		}
	}
	return appendSynthesizedTime(tags, now)
}

func appendSynthesizedTime(tags []Tag, now time.Time) ([]Tag, int64) {
	synthesized := now.UTC().Format(TimeLayout)
	out := make([]Tag, len(tags), len(tags)+1)
	copy(out, tags)
	out = append(out, Tag{Name: "time", Value: synthesized, HasValue: true})
	return out, now.UTC().Unix()
}
