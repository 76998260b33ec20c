package codec

import (
	"path/filepath"
	"testing"

	"github.com/adred-codev/chanhistory/internal/dbfile"
)

func secretFor(t *testing.T) dbfile.Secret {
	t.Helper()
	return dbfile.DeriveSecret("test-secret")
}

func TestMasterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "master.db")
	secret := secretFor(t)

	w, err := dbfile.Open(path, dbfile.ModeWrite, secret)
	if err != nil {
		t.Fatal(err)
	}
	want := Master{Version: CurrentVersion, Prehash: "abc", Posthash: "def"}
	if err := WriteMaster(w, want); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := dbfile.Open(path, dbfile.ModeRead, secret)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadMaster(r)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestReadMasterRejectsUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "master.db")
	secret := secretFor(t)

	w, _ := dbfile.Open(path, dbfile.ModeWrite, secret)
	_ = WriteMaster(w, Master{Version: MinSupportedVersion - 1, Prehash: "a", Posthash: "b"})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, _ := dbfile.Open(path, dbfile.ModeRead, secret)
	_, err := ReadMaster(r)
	if err != ErrUnsupportedVersion {
		t.Fatalf("err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestObjectFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "obj.db")
	secret := secretFor(t)
	master := Master{Version: CurrentVersion, Prehash: "p", Posthash: "q"}

	want := ObjectFile{
		Prehash:    master.Prehash,
		Posthash:   master.Posthash,
		ObjectName: "#chan",
		MaxLines:   50,
		MaxTime:    86400,
		Entries: []EntryRecord{
			{T: 1000, Tags: []TagPair{{Name: "time", Value: "2026-01-01T00:00:00.000Z", HasValue: true}}, Line: "hello"},
			{T: 1001, Tags: nil, Line: "world"},
		},
	}

	w, err := dbfile.Open(path, dbfile.ModeWrite, secret)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteObjectFile(w, want); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := dbfile.Open(path, dbfile.ModeRead, secret)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadObjectFile(r, master)
	if err != nil {
		t.Fatal(err)
	}
	if got.ObjectName != want.ObjectName || got.MaxLines != want.MaxLines || got.MaxTime != want.MaxTime {
		t.Fatalf("header mismatch: %+v", got)
	}
	if len(got.Entries) != len(want.Entries) {
		t.Fatalf("len(entries) = %d, want %d", len(got.Entries), len(want.Entries))
	}
	for i := range want.Entries {
		if got.Entries[i].Line != want.Entries[i].Line || got.Entries[i].T != want.Entries[i].T {
			t.Fatalf("entry %d = %+v, want %+v", i, got.Entries[i], want.Entries[i])
		}
	}
}

func TestReadObjectHeaderDetectsGenerationMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "obj.db")
	secret := secretFor(t)

	w, _ := dbfile.Open(path, dbfile.ModeWrite, secret)
	_ = WriteObjectFile(w, ObjectFile{Prehash: "old", Posthash: "old", ObjectName: "#chan", MaxLines: 1, MaxTime: 1})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, _ := dbfile.Open(path, dbfile.ModeRead, secret)
	_, err := ReadObjectHeader(r, Master{Prehash: "new", Posthash: "new"})
	if err != ErrGenerationMismatch {
		t.Fatalf("err = %v, want ErrGenerationMismatch", err)
	}
}

func TestReadObjectHeaderStopsBeforeEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "obj.db")
	secret := secretFor(t)
	master := Master{Prehash: "p", Posthash: "q"}

	w, _ := dbfile.Open(path, dbfile.ModeWrite, secret)
	_ = WriteObjectFile(w, ObjectFile{
		Prehash: "p", Posthash: "q", ObjectName: "#chan", MaxLines: 1, MaxTime: 1,
		Entries: []EntryRecord{{T: 1, Line: "x"}},
	})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, _ := dbfile.Open(path, dbfile.ModeRead, secret)
	header, err := ReadObjectHeader(r, master)
	if err != nil {
		t.Fatal(err)
	}
	if header.Entries != nil {
		t.Fatalf("expected no entries parsed yet, got %+v", header.Entries)
	}

	entries, err := ReadEntries(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Line != "x" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "x.tmp")
	real := filepath.Join(dir, "x.db")
	secret := secretFor(t)

	w, _ := dbfile.Open(tmp, dbfile.ModeWrite, secret)
	_ = w.WriteUint32(7)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if err := AtomicReplace(tmp, real); err != nil {
		t.Fatal(err)
	}

	r, err := dbfile.Open(real, dbfile.ModeRead, secret)
	if err != nil {
		t.Fatal(err)
	}
	v, err := r.ReadUint32()
	if err != nil || v != 7 {
		t.Fatalf("v = %d, %v", v, err)
	}
}
