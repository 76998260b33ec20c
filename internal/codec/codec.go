// Package codec implements the binary framing of spec.md §4.5: magic
// numbers, version negotiation, and the atomic-rename write sequence, all
// built on top of the dbfile opaque DB primitive. Grounded on the
// HISTORYDB_MAGIC_* constants and R_SAFE/W_SAFE read/write sequences in
// the original history_backend_mem.c.
package codec

import (
	"errors"
	"os"
	"runtime"

	"github.com/adred-codev/chanhistory/internal/dbfile"
)

// Magic numbers from spec.md §4.5.
const (
	MagicFileStart  uint32 = 0xFEFEFEFE
	MagicFileEnd    uint32 = 0xEFEFEFEF
	MagicEntryStart uint32 = 0xFFFFFFFF
	MagicEntryEnd   uint32 = 0xEEEEEEEE
)

// CurrentVersion and MinSupportedVersion bound the version range this
// codec accepts (spec.md: "accept ≥ 4999 and ≤ 5000").
const (
	CurrentVersion     uint32 = 5000
	MinSupportedVersion uint32 = 4999
)

// ErrUnsupportedVersion is returned by ReadMaster/ReadObjectFile when the
// file's version falls outside [MinSupportedVersion, CurrentVersion].
var ErrUnsupportedVersion = errors.New("codec: unsupported database version")

// ErrBadMagic is returned when a structural magic number doesn't match
// what's expected — treated as corruption per spec.md §4.5/§7.
var ErrBadMagic = errors.New("codec: bad magic number, possibly corrupt")

// ErrGenerationMismatch is returned when an object file's prehash/posthash
// don't match the master file's — the file belongs to a different salt
// generation and must be skipped, not deleted (spec.md §4.5).
var ErrGenerationMismatch = errors.New("codec: object file belongs to a different salt generation")

// Master is the master.db payload (spec.md §4.5): version plus the two
// salts.
type Master struct {
	Version  uint32
	Prehash  string
	Posthash string
}

// WriteMaster writes the master file body: version, prehash, posthash.
func WriteMaster(db *dbfile.DB, m Master) error {
	if err := db.WriteUint32(m.Version); err != nil {
		return err
	}
	if err := db.WriteString(m.Prehash, true); err != nil {
		return err
	}
	return db.WriteString(m.Posthash, true)
}

// ReadMaster reads and version-checks the master file body.
func ReadMaster(db *dbfile.DB) (Master, error) {
	var m Master
	v, err := db.ReadUint32()
	if err != nil {
		return m, err
	}
	if v < MinSupportedVersion || v > CurrentVersion {
		return m, ErrUnsupportedVersion
	}
	m.Version = v
	pre, ok, err := db.ReadString()
	if err != nil {
		return m, err
	}
	if !ok {
		return m, ErrBadMagic
	}
	m.Prehash = pre
	post, ok, err := db.ReadString()
	if err != nil {
		return m, err
	}
	if !ok {
		return m, ErrBadMagic
	}
	m.Posthash = post
	return m, nil
}

// TagPair is one on-disk message tag; Value is absent (null) when
// HasValue is false, matching the wire format's distinguishable null.
type TagPair struct {
	Name     string
	Value    string
	HasValue bool
}

// EntryRecord is one on-disk log entry.
type EntryRecord struct {
	T    int64
	Tags []TagPair
	Line string
}

// ObjectFile is the full per-object file payload (spec.md §4.5).
type ObjectFile struct {
	Prehash    string
	Posthash   string
	ObjectName string
	MaxLines   uint64
	MaxTime    uint64
	Entries    []EntryRecord
}

// WriteObjectFile writes the full per-object framing: header, limits, then
// each entry, then the file-end magic.
func WriteObjectFile(db *dbfile.DB, f ObjectFile) error {
	if err := db.WriteUint32(MagicFileStart); err != nil {
		return err
	}
	if err := db.WriteUint32(CurrentVersion); err != nil {
		return err
	}
	if err := db.WriteString(f.Prehash, true); err != nil {
		return err
	}
	if err := db.WriteString(f.Posthash, true); err != nil {
		return err
	}
	if err := db.WriteString(f.ObjectName, true); err != nil {
		return err
	}
	if err := db.WriteUint64(f.MaxLines); err != nil {
		return err
	}
	if err := db.WriteUint64(f.MaxTime); err != nil {
		return err
	}

	for _, e := range f.Entries {
		if err := db.WriteUint32(MagicEntryStart); err != nil {
			return err
		}
		if err := db.WriteUint64(uint64(e.T)); err != nil {
			return err
		}
		for _, t := range e.Tags {
			if err := db.WriteString(t.Name, true); err != nil {
				return err
			}
			if err := db.WriteString(t.Value, t.HasValue); err != nil {
				return err
			}
		}
		// terminator tag pair: null, null
		if err := db.WriteString("", false); err != nil {
			return err
		}
		if err := db.WriteString("", false); err != nil {
			return err
		}
		if err := db.WriteString(e.Line, true); err != nil {
			return err
		}
		if err := db.WriteUint32(MagicEntryEnd); err != nil {
			return err
		}
	}

	return db.WriteUint32(MagicFileEnd)
}

// ReadObjectHeader reads the per-object file up to (not including) the
// entries, validating magic, version and salt generation. The controller
// uses this to decide, before paying the cost of parsing entries, whether
// the object still exists in the live store (spec.md §4.5: "If the object
// named in the file has no corresponding live object... delete the file,
// treat the load as successful" — no entries need to be read in that case).
func ReadObjectHeader(db *dbfile.DB, master Master) (ObjectFile, error) {
	var f ObjectFile

	magic, err := db.ReadUint32()
	if err != nil {
		return f, err
	}
	if magic != MagicFileStart {
		return f, ErrBadMagic
	}

	version, err := db.ReadUint32()
	if err != nil {
		return f, err
	}
	if version < MinSupportedVersion || version > CurrentVersion {
		return f, ErrUnsupportedVersion
	}

	pre, ok, err := db.ReadString()
	if err != nil {
		return f, err
	}
	if !ok {
		return f, ErrBadMagic
	}
	post, ok, err := db.ReadString()
	if err != nil {
		return f, err
	}
	if !ok {
		return f, ErrBadMagic
	}
	f.Prehash, f.Posthash = pre, post
	if f.Prehash != master.Prehash || f.Posthash != master.Posthash {
		return f, ErrGenerationMismatch
	}

	name, ok, err := db.ReadString()
	if err != nil {
		return f, err
	}
	if !ok {
		return f, ErrBadMagic
	}
	f.ObjectName = name

	f.MaxLines, err = db.ReadUint64()
	if err != nil {
		return f, err
	}
	f.MaxTime, err = db.ReadUint64()
	if err != nil {
		return f, err
	}
	return f, nil
}

// ReadEntries reads the entry stream that follows a header read via
// ReadObjectHeader, until the file-end magic.
func ReadEntries(db *dbfile.DB) ([]EntryRecord, error) {
	var entries []EntryRecord
	for {
		magic, err := db.ReadUint32()
		if err != nil {
			return entries, err
		}
		if magic == MagicFileEnd {
			break
		}
		if magic != MagicEntryStart {
			return entries, ErrBadMagic
		}

		tRaw, err := db.ReadUint64()
		if err != nil {
			return entries, err
		}
		rec := EntryRecord{T: int64(tRaw)}

		for {
			tname, tnameOK, err := db.ReadString()
			if err != nil {
				return entries, err
			}
			tvalue, tvalueOK, err := db.ReadString()
			if err != nil {
				return entries, err
			}
			if !tnameOK && !tvalueOK {
				break
			}
			rec.Tags = append(rec.Tags, TagPair{Name: tname, Value: tvalue, HasValue: tvalueOK})
		}

		line, ok, err := db.ReadString()
		if err != nil {
			return entries, err
		}
		if !ok {
			return entries, ErrBadMagic
		}
		rec.Line = line

		endMagic, err := db.ReadUint32()
		if err != nil {
			return entries, err
		}
		if endMagic != MagicEntryEnd {
			return entries, ErrBadMagic
		}

		entries = append(entries, rec)
	}
	return entries, nil
}

// ReadObjectFile reads header and entries in one call — used by tests and
// by any caller that doesn't need the early-exit-before-entries behavior.
func ReadObjectFile(db *dbfile.DB, master Master) (ObjectFile, error) {
	f, err := ReadObjectHeader(db, master)
	if err != nil {
		return f, err
	}
	entries, err := ReadEntries(db)
	f.Entries = entries
	return f, err
}

// AtomicReplace renames tmpPath over realPath. On platforms lacking atomic
// replace (Windows), the target is unlinked first, matching the original
// module's #ifdef _WIN32 unlink-then-rename fallback (spec.md §4.5/§9).
func AtomicReplace(tmpPath, realPath string) error {
	if runtime.GOOS == "windows" {
		_ = os.Remove(realPath)
	}
	return os.Rename(tmpPath, realPath)
}
