package dbfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.db")
	secret := DeriveSecret("hunter2")

	w, err := Open(path, ModeWrite, secret)
	if err != nil {
		t.Fatalf("open write: %v", err)
	}
	if err := w.WriteUint32(42); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteString("hello", true); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteString("", false); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := Open(path, ModeRead, secret)
	if err != nil {
		t.Fatalf("open read: %v", err)
	}
	n, err := r.ReadUint32()
	if err != nil || n != 42 {
		t.Fatalf("ReadUint32 = %d, %v", n, err)
	}
	s, ok, err := r.ReadString()
	if err != nil || !ok || s != "hello" {
		t.Fatalf("ReadString = %q, %v, %v", s, ok, err)
	}
	_, ok, err = r.ReadString()
	if err != nil || ok {
		t.Fatalf("expected null string, got ok=%v err=%v", ok, err)
	}
}

func TestOpenMissingFileReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "missing.db"), ModeRead, DeriveSecret("x"))
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestWrongSecretIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.db")

	w, _ := Open(path, ModeWrite, DeriveSecret("right"))
	_ = w.WriteUint32(1)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path, ModeRead, DeriveSecret("wrong"))
	if err != ErrCorrupt {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestTamperedBytesAreCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.db")
	secret := DeriveSecret("s")

	w, _ := Open(path, ModeWrite, secret)
	_ = w.WriteUint32(1)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-1] ^= 0xFF
	if err := os.WriteFile(path, raw, 0600); err != nil {
		t.Fatal(err)
	}

	_, err = Open(path, ModeRead, secret)
	if err != ErrCorrupt {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestTruncatedFileIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.db")
	if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, ModeRead, DeriveSecret("s"))
	if err != ErrCorrupt {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}
