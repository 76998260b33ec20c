package replay

import (
	"testing"
	"time"

	"github.com/adred-codev/chanhistory/internal/historylog"
	"github.com/adred-codev/chanhistory/internal/mtag"
)

func addAt(t *testing.T, l *historylog.Log, ts int64, line string) {
	t.Helper()
	tag := mtag.Tag{Name: "time", Value: time.Unix(ts, 0).UTC().Format(mtag.TimeLayout), HasValue: true}
	if err := l.Add([]mtag.Tag{tag}, line, time.Unix(ts, 0), false, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
}

func TestRequestFilterTighterThanLog(t *testing.T) {
	now := time.Unix(100000, 0)
	l := historylog.New("a")
	l.SetLimit(100, 3600, now)

	for i := 0; i < 20; i++ {
		addAt(t, l, now.Unix()-10+int64(i/2), "line")
	}

	r := Request(l, Filter{LastLines: 3, LastSeconds: 5}, now)
	if r == nil {
		t.Fatal("expected a result")
	}
	if len(r.Entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(r.Entries))
	}
	for _, e := range r.Entries {
		if e.T < now.Unix()-5 {
			t.Fatalf("entry T=%d older than redline", e.T)
		}
	}
}

func TestRequestUnknownObject(t *testing.T) {
	if Request(nil, Filter{}, time.Now()) != nil {
		t.Fatal("expected nil result for missing log")
	}
}

func TestRequestOrderingOldestFirst(t *testing.T) {
	now := time.Unix(2000, 0)
	l := historylog.New("a")
	l.SetLimit(10, 3600, now)
	addAt(t, l, 1000, "first")
	addAt(t, l, 1001, "second")
	addAt(t, l, 1002, "third")

	r := Request(l, Filter{}, now)
	want := []string{"first", "second", "third"}
	if len(r.Entries) != len(want) {
		t.Fatalf("len = %d, want %d", len(r.Entries), len(want))
	}
	for i, w := range want {
		if r.Entries[i].Line != w {
			t.Fatalf("entries[%d] = %q, want %q", i, r.Entries[i].Line, w)
		}
	}
}

func TestRequestIsDeepCopy(t *testing.T) {
	now := time.Unix(2000, 0)
	l := historylog.New("a")
	l.SetLimit(10, 3600, now)
	addAt(t, l, 1000, "first")

	r := Request(l, Filter{}, now)
	r.Entries[0].Line = "mutated"

	live := l.Head()
	if live.Line != "first" {
		t.Fatalf("mutating the result mutated the live log: %q", live.Line)
	}
}
