// Package persistence implements the Persistence Controller of spec.md
// §4.5: master-file lifecycle, per-object file naming, directory scan on
// boot, quarantine of corrupt files, and delete-on-remove semantics.
// Grounded on hbm_read_masterdb, hbm_write_masterdb, hbm_read_dbs,
// hbm_read_db, hbm_write_db and hbm_delete_db in the original
// history_backend_mem.c.
package persistence

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/adred-codev/chanhistory/internal/codec"
	"github.com/adred-codev/chanhistory/internal/dbfile"
	"github.com/adred-codev/chanhistory/internal/obslog"
)

const masterFilename = "master.db"
const saltLength = 128
const saltAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// PersistChecker is the host collaborator boundary referenced, not
// specified, by spec.md §1/§9: whether an object still exists and still
// carries the history-persistence mode. The host chat server owns this
// state; this module only consumes it.
type PersistChecker interface {
	HasPersistMode(object string) bool
}

// Controller owns the on-disk side of persistence: the master file, and
// the directory of per-object files.
type Controller struct {
	Directory string
	Secret    dbfile.Secret

	Prehash  string
	Posthash string

	logger zerolog.Logger
}

// Open performs the boot sequence of spec.md §4.5 steps 1-4: open
// master.db, generating it (with fresh salts) if absent, failing
// configuration validation on any other open error or unsupported
// version. logger receives every quarantine/skip/disk-error event LoadAll
// and Write encounter afterwards (spec.md §7: "logged to host operator
// channel"); the zero value is a safe, silent no-op logger.
func Open(directory string, secret dbfile.Secret, logger zerolog.Logger) (*Controller, error) {
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, fmt.Errorf("persistence: create directory %q: %w", directory, err)
	}

	c := &Controller{Directory: directory, Secret: secret, logger: logger}
	masterPath := filepath.Join(directory, masterFilename)

	db, err := dbfile.Open(masterPath, dbfile.ModeRead, secret)
	if errors.Is(err, dbfile.ErrNotFound) {
		pre, err := randomAlnum(saltLength)
		if err != nil {
			return nil, err
		}
		post, err := randomAlnum(saltLength)
		if err != nil {
			return nil, err
		}
		c.Prehash, c.Posthash = pre, post
		if err := c.writeMaster(); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err != nil {
		// Anything other than not-found (e.g. wrong secret, corrupt
		// header) must fail configuration validation (spec.md §4.5 step 3).
		return nil, fmt.Errorf("persistence: open master.db: %w", err)
	}
	defer db.Close()

	m, err := codec.ReadMaster(db)
	if err != nil {
		return nil, fmt.Errorf("persistence: read master.db: %w", err)
	}
	c.Prehash, c.Posthash = m.Prehash, m.Posthash
	return c, nil
}

func (c *Controller) writeMaster() error {
	masterPath := filepath.Join(c.Directory, masterFilename)
	db, err := dbfile.Open(masterPath, dbfile.ModeWrite, c.Secret)
	if err != nil {
		return fmt.Errorf("persistence: open master.db for write: %w", err)
	}
	if err := codec.WriteMaster(db, codec.Master{
		Version:  codec.CurrentVersion,
		Prehash:  c.Prehash,
		Posthash: c.Posthash,
	}); err != nil {
		return err
	}
	return db.Close()
}

func randomAlnum(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(saltAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = saltAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// Filename returns the salted, hashed on-disk path for an object name:
// SHA-256(prehash || " " || lowercase(name) || " " || posthash) hex,
// suffix .db (spec.md §4.5).
func (c *Controller) Filename(name string) string {
	h := sha256.Sum256([]byte(c.Prehash + " " + strings.ToLower(name) + " " + c.Posthash))
	return filepath.Join(c.Directory, hex.EncodeToString(h[:])+".db")
}

// LoadedObject is one successfully parsed per-object file, ready for the
// caller to feed through the normal Add path.
type LoadedObject struct {
	Name     string
	MaxLines uint64
	MaxTime  uint64
	Entries  []codec.EntryRecord
}

// ScanResult is the outcome of a directory scan: objects to load, plus
// counts for diagnostics.
type ScanResult struct {
	Loaded     []LoadedObject
	Quarantined int
	Skipped     int // generation-mismatch or object-not-found
}

// LoadAll scans Directory for "*.db" files other than master.db, parsing
// each one. exists reports whether an object still has a live, persistent
// presence in the store; files for objects that don't satisfy it are
// deleted (not quarantined) and treated as a successful, empty load.
// Corrupt files are moved to <Directory>/bad/<name>, overwriting any
// existing quarantine file of the same name.
func (c *Controller) LoadAll(exists func(name string) bool) (ScanResult, error) {
	var result ScanResult

	entries, err := os.ReadDir(c.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		obslog.LogIOError(c.logger, c.Directory, err)
		return result, err
	}

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if name == masterFilename || !strings.HasSuffix(name, ".db") {
			continue
		}
		path := filepath.Join(c.Directory, name)

		obj, skip, err := c.loadOne(path, exists)
		if err != nil {
			obslog.LogCorruption(c.logger, path, err)
			c.quarantine(path, name)
			result.Quarantined++
			continue
		}
		if skip {
			result.Skipped++
			continue
		}
		result.Loaded = append(result.Loaded, obj)
	}

	return result, nil
}

func (c *Controller) loadOne(path string, exists func(name string) bool) (LoadedObject, bool, error) {
	var out LoadedObject

	db, err := dbfile.Open(path, dbfile.ModeRead, c.Secret)
	if err != nil {
		return out, false, err
	}
	defer db.Close()

	master := codec.Master{Prehash: c.Prehash, Posthash: c.Posthash}
	header, err := codec.ReadObjectHeader(db, master)
	if errors.Is(err, codec.ErrGenerationMismatch) {
		// Different salt generation: warn and skip, do not delete
		// (spec.md §4.5) and do not quarantine either — it's not corrupt,
		// just foreign.
		c.logger.Warn().Str("path", path).Msg("history: object file belongs to a different salt generation, skipping")
		return out, true, nil
	}
	if err != nil {
		return out, false, err
	}

	if !exists(header.ObjectName) {
		_ = os.Remove(path)
		c.logger.Info().Str("object", header.ObjectName).Msg("history: removed on-disk file for an object with no live persistence mode")
		return out, true, nil
	}

	rawEntries, err := codec.ReadEntries(db)
	if err != nil {
		return out, false, err
	}

	out.Name = header.ObjectName
	out.MaxLines = header.MaxLines
	out.MaxTime = header.MaxTime
	out.Entries = rawEntries
	return out, false, nil
}

func (c *Controller) quarantine(path, name string) {
	badDir := filepath.Join(c.Directory, "bad")
	_ = os.MkdirAll(badDir, 0700)
	dest := filepath.Join(badDir, name)
	_ = os.Remove(dest)
	_ = os.Rename(path, dest)
}

// Write performs the whole-file atomic write of one object's log
// (spec.md §4.5 write algorithm). It is a quiet no-op if checker reports
// the object no longer carries the persistence mode. On success it returns
// the size in bytes of the file now on disk, for the bytes-on-disk gauge;
// any failure is logged to logger before being returned.
func (c *Controller) Write(name string, maxLines, maxTime uint64, entries []codec.EntryRecord, checker PersistChecker) (int64, error) {
	if checker != nil && !checker.HasPersistMode(name) {
		return 0, nil
	}

	realPath := c.Filename(name)
	tmpPath := realPath + ".tmp"

	db, err := dbfile.Open(tmpPath, dbfile.ModeWrite, c.Secret)
	if err != nil {
		err = fmt.Errorf("persistence: open %q for write: %w", tmpPath, err)
		obslog.LogIOError(c.logger, name, err)
		return 0, err
	}

	if err := codec.WriteObjectFile(db, codec.ObjectFile{
		Prehash:    c.Prehash,
		Posthash:   c.Posthash,
		ObjectName: name,
		MaxLines:   maxLines,
		MaxTime:    maxTime,
		Entries:    entries,
	}); err != nil {
		obslog.LogIOError(c.logger, name, err)
		return 0, err
	}
	if err := db.Close(); err != nil {
		err = fmt.Errorf("persistence: write %q: %w", tmpPath, err)
		obslog.LogIOError(c.logger, name, err)
		return 0, err
	}

	if err := codec.AtomicReplace(tmpPath, realPath); err != nil {
		err = fmt.Errorf("persistence: rename %q to %q: %w", tmpPath, realPath, err)
		obslog.LogIOError(c.logger, name, err)
		return 0, err
	}

	info, err := os.Stat(realPath)
	if err != nil {
		// The write itself succeeded; a stat failure here shouldn't fail
		// the whole operation, just the size report.
		return 0, nil
	}
	return info.Size(), nil
}

// Delete unlinks the on-disk file for name immediately, used by Destroy
// and by the mode-lost hook.
func (c *Controller) Delete(name string) {
	_ = os.Remove(c.Filename(name))
}
