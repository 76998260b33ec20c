package mtag

import (
	"testing"
	"time"
)

func countTimeTags(tags []Tag) int {
	n := 0
	for _, t := range tags {
		if t.Name == "time" {
			n++
		}
	}
	return n
}

func TestEnsureTimeSynthesizesWhenAbsent(t *testing.T) {
	now := time.Unix(1000, 0)
	out, ts := EnsureTime(nil, now)
	if countTimeTags(out) != 1 {
		t.Fatalf("expected exactly one time tag, got %+v", out)
	}
	if ts != now.UTC().Unix() {
		t.Fatalf("ts = %d, want %d", ts, now.UTC().Unix())
	}
}

func TestEnsureTimeKeepsWellFormedTag(t *testing.T) {
	value := time.Unix(2000, 0).UTC().Format(TimeLayout)
	in := []Tag{{Name: "time", Value: value, HasValue: true}}
	out, ts := EnsureTime(in, time.Unix(9999, 0))

	if countTimeTags(out) != 1 {
		t.Fatalf("expected exactly one time tag, got %+v", out)
	}
	if ts != 2000 {
		t.Fatalf("ts = %d, want 2000", ts)
	}
	if out[0].Value != value {
		t.Fatalf("value = %q, want %q", out[0].Value, value)
	}
}

func TestEnsureTimeReplacesMalformedTag(t *testing.T) {
	in := []Tag{
		{Name: "other", Value: "x", HasValue: true},
		{Name: "time", Value: "not-a-timestamp", HasValue: true},
	}
	now := time.Unix(5000, 0)

	out, ts := EnsureTime(in, now)

	if countTimeTags(out) != 1 {
		t.Fatalf("expected exactly one time tag after replacing a malformed one, got %+v", out)
	}
	if ts != now.UTC().Unix() {
		t.Fatalf("ts = %d, want %d", ts, now.UTC().Unix())
	}
	foundOther := false
	for _, tag := range out {
		if tag.Name == "other" {
			foundOther = true
		}
	}
	if !foundOther {
		t.Fatalf("expected unrelated tags to survive, got %+v", out)
	}
}

func TestCloneIsIndependentStorage(t *testing.T) {
	in := []Tag{{Name: "a", Value: "1", HasValue: true}}
	out := Clone(in)
	out[0].Value = "mutated"
	if in[0].Value != "1" {
		t.Fatalf("Clone should not alias the input slice")
	}
}

func TestCloneOfEmptyIsNil(t *testing.T) {
	if Clone(nil) != nil {
		t.Fatal("expected Clone(nil) to return nil")
	}
	if Clone([]Tag{}) != nil {
		t.Fatal("expected Clone of an empty slice to return nil")
	}
}
