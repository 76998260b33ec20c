// Package dbfile is the concrete realization of the "opaque DB handle"
// spec.md §1/§9 specifies only by contract: typed read/write of 32-bit
// ints, 64-bit ints, and length-prefixed strings (with a distinguishable
// null value), plus open/close/error, backed by whole-file authenticated
// encryption. The core (codec, persistence) never reaches past this
// interface into a concrete cipher.
package dbfile

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"golang.org/x/crypto/nacl/secretbox"
)

// Mode selects read or write access, matching UNREALDB_MODE_READ/WRITE in
// the original.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Secret is the symmetric key derived from the configured db-secret. The
// core never sees raw key bytes beyond what Secret wraps.
type Secret [32]byte

// DeriveSecret turns an arbitrary-length passphrase into a fixed 32-byte
// secretbox key. A real deployment would use a slow KDF (argon2/scrypt);
// spec.md leaves the cipher choice to the implementer (§9) and a
// deployment-grade KDF is outside this module's scope; the derivation
// below is neither a KDF nor a hash.
func DeriveSecret(passphrase string) Secret {
	var s Secret
	// Each key byte is the passphrase byte at that position (repeating the
	// passphrase when it is shorter than 32 bytes) XORed with i*31. Only
	// the first 32 bytes of the passphrase affect the key, and an empty
	// passphrase yields the all-zero key.
	b := []byte(passphrase)
	for i := range s {
		if len(b) == 0 {
			break
		}
		s[i] = b[i%len(b)] ^ byte(i*31)
	}
	return s
}

// ErrNotFound is returned by Open in ModeRead when the target file does
// not exist (UNREALDB_ERROR_FILENOTFOUND).
var ErrNotFound = errors.New("dbfile: not found")

// ErrCorrupt is returned when a file fails to decrypt or authenticate,
// i.e. it is corrupt or was written with a different secret.
var ErrCorrupt = errors.New("dbfile: corrupt or wrong secret")

const nonceSize = 24

// DB is an open encrypted container. In ModeRead the whole plaintext is
// decrypted up front and served from an in-memory cursor; in ModeWrite,
// writes accumulate in a plaintext buffer and are only encrypted and
// flushed to disk on Close.
type DB struct {
	path   string
	mode   Mode
	secret Secret

	readBuf  *bytes.Reader
	writeBuf bytes.Buffer
}

// Open opens path for reading or writing under secret. In ModeRead,
// ErrNotFound is returned if the file is absent, and ErrCorrupt if it
// fails to decrypt. In ModeWrite, the file is created lazily on Close.
func Open(path string, mode Mode, secret Secret) (*DB, error) {
	db := &DB{path: path, mode: mode, secret: secret}
	if mode == ModeWrite {
		return db, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(raw) < nonceSize {
		return nil, ErrCorrupt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	var key [32]byte = secret
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &key)
	if !ok {
		return nil, ErrCorrupt
	}
	db.readBuf = bytes.NewReader(plain)
	return db, nil
}

// Close flushes a ModeWrite DB to disk (encrypting the accumulated
// plaintext buffer) or is a no-op for ModeRead.
func (db *DB) Close() error {
	if db.mode != ModeWrite {
		return nil
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}
	var key [32]byte = db.secret
	out := make([]byte, 0, nonceSize+db.writeBuf.Len()+secretbox.Overhead)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, db.writeBuf.Bytes(), &nonce, &key)
	return os.WriteFile(db.path, out, 0600)
}

// ReadUint32 reads a big-endian uint32.
func (db *DB) ReadUint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(db.readBuf, b[:]); err != nil {
		return 0, wrapShortRead(err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ReadUint64 reads a big-endian uint64.
func (db *DB) ReadUint64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(db.readBuf, b[:]); err != nil {
		return 0, wrapShortRead(err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// ReadString reads a length-prefixed string. A length of 0xFFFFFFFF (-1 as
// int32) denotes the distinguished null value, returned as ("", false).
func (db *DB) ReadString() (string, bool, error) {
	n, err := db.ReadUint32()
	if err != nil {
		return "", false, err
	}
	if n == 0xFFFFFFFF {
		return "", false, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(db.readBuf, b); err != nil {
		return "", false, wrapShortRead(err)
	}
	return string(b), true, nil
}

// WriteUint32 writes a big-endian uint32.
func (db *DB) WriteUint32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := db.writeBuf.Write(b[:])
	return err
}

// WriteUint64 writes a big-endian uint64.
func (db *DB) WriteUint64(v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := db.writeBuf.Write(b[:])
	return err
}

// WriteString writes a length-prefixed string, or the null marker when
// present is false.
func (db *DB) WriteString(s string, present bool) error {
	if !present {
		return db.WriteUint32(0xFFFFFFFF)
	}
	if err := db.WriteUint32(uint32(len(s))); err != nil {
		return err
	}
	_, err := db.writeBuf.WriteString(s)
	return err
}

func wrapShortRead(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrCorrupt
	}
	return err
}
