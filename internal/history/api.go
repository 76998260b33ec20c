package history

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/chanhistory/internal/codec"
	"github.com/adred-codev/chanhistory/internal/config"
	"github.com/adred-codev/chanhistory/internal/dbfile"
	"github.com/adred-codev/chanhistory/internal/historylog"
	"github.com/adred-codev/chanhistory/internal/historymetrics"
	"github.com/adred-codev/chanhistory/internal/mtag"
	"github.com/adred-codev/chanhistory/internal/objectstore"
	"github.com/adred-codev/chanhistory/internal/persistence"
	"github.com/adred-codev/chanhistory/internal/replay"
	"github.com/adred-codev/chanhistory/internal/scheduler"
)

// Filter re-exports replay.Filter so callers only need to import this
// package for the public surface.
type Filter = replay.Filter

// Result re-exports replay.Result.
type Result = replay.Result

// Store is the single owned context value spec.md §9 calls for in place
// of the original module's process-wide statics: the hash table, the
// expiry cursor, and the configuration record are all fields here, not
// package-level state, which is what makes per-test isolation possible.
type Store struct {
	cfg     *config.Config
	pending *config.Config

	objects *objectstore.Store
	cursor  scheduler.Cursor

	persist        *persistence.Controller
	pendingPersist *persistence.Controller
	checker        PersistChecker

	logger  zerolog.Logger
	metrics *historymetrics.Metrics

	bootstrapped bool

	// tickBytes accumulates the size of every file Write reports during
	// the current Tick's sweep, published to metrics.BytesOnDisk once the
	// sweep finishes.
	tickBytes int64
}

// Init creates a Store for cfg. If cfg.Persist is set, the master file is
// opened (or created on first boot) immediately, so a misconfigured
// secret or unsupported version fails here, before any other operation
// runs (spec.md §4.5 step 1-4, §7 ConfigInvalid).
func Init(cfg *config.Config, checker PersistChecker, logger zerolog.Logger, metrics *historymetrics.Metrics) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:     cfg,
		objects: objectstore.New(),
		checker: checker,
		logger:  logger,
		metrics: metrics,
	}

	if cfg.Persist {
		ctrl, err := persistence.Open(cfg.Directory, dbfile.DeriveSecret(cfg.DBSecret), logger)
		if err != nil {
			return nil, err
		}
		s.persist = ctrl
	}

	return s, nil
}

// ReloadConfig validates the new configuration and, if valid, queues it to
// take effect on the next Tick (spec.md §4.6: "applied on the next tick;
// no restart"). An invalid configuration is rejected outright and the
// Store keeps running under its current configuration.
func (s *Store) ReloadConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("history: reload-config rejected: %w", err)
	}

	var ctrl *persistence.Controller
	if cfg.Persist {
		opened, err := persistence.Open(cfg.Directory, dbfile.DeriveSecret(cfg.DBSecret), s.logger)
		if err != nil {
			return fmt.Errorf("history: reload-config rejected: %w", err)
		}
		ctrl = opened
	}

	s.pending = cfg
	s.pendingPersist = ctrl
	return nil
}

// Shutdown releases no owned resources beyond the in-memory state (disk
// writes are tick-driven, not shutdown-driven — matching the original
// module, which frees its config on MOD_UNLOAD but performs no final
// flush).
func (s *Store) Shutdown() {
	s.logger.Info().Msg("history: shutdown")
}

// Bootstrap runs the one-shot disk load described in spec.md §4.4: it
// must run exactly once, after the host has finished populating the
// object list (so objects with the persistence mode already have a Log
// with limits set via SetLimit). Calling it more than once is a no-op.
func (s *Store) Bootstrap(now time.Time) error {
	if s.bootstrapped {
		return nil
	}
	s.bootstrapped = true

	if s.persist == nil {
		return nil
	}

	result, err := s.persist.LoadAll(func(name string) bool {
		if s.checker != nil && !s.checker.HasPersistMode(name) {
			return false
		}
		return s.objects.Find(name) != nil
	})
	if err != nil {
		return err
	}

	if result.Quarantined > 0 || result.Skipped > 0 {
		s.logger.Warn().
			Int("loaded", len(result.Loaded)).
			Int("quarantined", result.Quarantined).
			Int("skipped", result.Skipped).
			Msg("history: bootstrap scan found corrupt or foreign-generation files")
	} else {
		s.logger.Info().Int("loaded", len(result.Loaded)).Msg("history: bootstrap scan complete")
	}

	for _, obj := range result.Loaded {
		l := s.objects.FindOrInsert(obj.Name)
		for _, rec := range obj.Entries {
			tags := make([]mtag.Tag, 0, len(rec.Tags))
			for _, t := range rec.Tags {
				tags = append(tags, mtag.Tag{Name: t.Name, Value: t.Value, HasValue: t.HasValue})
			}
			// Live limits win over the file's own limits, per spec.md §9's
			// first open question: we never call SetLimit from obj here.
			_ = l.Add(tags, rec.Line, now, false, s.warn)
		}
		// Prevent an immediate rewrite of a log we just loaded unchanged.
		l.Dirty = false
	}

	return nil
}

// Add appends one line with its tags to name's log, creating the log if
// necessary. Returns historylog.NoLimitWarning only when StrictMode is on
// and the log has no limit configured yet — the release-mode default is
// to apply historylog.DefaultMaxLines/DefaultMaxTime instead and log a
// warning.
func (s *Store) Add(name string, tags []mtag.Tag, line string) error {
	l := s.objects.FindOrInsert(name)
	return l.Add(tags, line, time.Now(), s.cfg.StrictMode, s.warn)
}

// Request returns a filtered, deep-copied replay of name's log, or nil if
// no log exists for that name.
func (s *Store) Request(name string, filter Filter) *Result {
	l := s.objects.Find(name)
	if l == nil {
		return nil
	}
	return replay.Request(l, filter, time.Now())
}

// SetLimit creates the log for name if necessary, then overwrites its
// limits and immediately re-enforces them.
func (s *Store) SetLimit(name string, maxLines int, maxTime int64) {
	l := s.objects.FindOrInsert(name)
	l.SetLimit(maxLines, maxTime, time.Now())
}

// Destroy removes name's log entirely, deleting its on-disk file
// immediately if persistence is enabled. Returns true if a log existed.
func (s *Store) Destroy(name string) bool {
	l := s.objects.Find(name)
	if l == nil {
		return false
	}
	l.Destroy()
	s.objects.Remove(l)
	if s.persist != nil {
		s.persist.Delete(name)
	}
	return true
}

// OnModeLost is called by the host when an object loses the
// history-persistence mode (flag). The on-disk file is unlinked right
// away, but the in-memory log is marked dirty so a later mode restore
// plus the next Tick rewrites it in full (spec.md §4.5 mode-change hook).
func (s *Store) OnModeLost(name string, flag byte) {
	if flag != PersistModeChar || s.persist == nil {
		return
	}
	l := s.objects.Find(name)
	if l == nil {
		return
	}
	s.persist.Delete(name)
	l.Dirty = true
}

// Tick runs one incremental expiry sweep, applying any pending
// ReloadConfig first, and flushes dirty logs when persistence is enabled.
func (s *Store) Tick(now time.Time) {
	if s.pending != nil {
		s.cfg = s.pending
		s.persist = s.pendingPersist
		s.pending, s.pendingPersist = nil, nil
	}

	start := time.Now()
	s.tickBytes = 0

	var flush scheduler.Flush
	if s.persist != nil {
		flush = s.flushLog
	}
	s.cursor.Sweep(s.objects, s.cfg.Spread, now, flush)

	if s.metrics != nil {
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
		if s.persist != nil {
			s.metrics.BytesOnDisk.Set(float64(s.tickBytes))
		}
		s.updateGauges()
	}
}

func (s *Store) flushLog(l *historylog.Log) error {
	// An object that has lost its persistence mode stays dirty across
	// ticks: OnModeLost's promise that a later restore "rewrites it in
	// full" only holds if a no-op write here leaves Dirty untouched.
	if s.checker != nil && !s.checker.HasPersistMode(l.Name) {
		return nil
	}

	entries := make([]codec.EntryRecord, 0, l.NumLines)
	for e := l.Head(); e != nil; e = e.Next {
		rec := codec.EntryRecord{T: e.T, Line: e.Line}
		for _, t := range e.Tags {
			rec.Tags = append(rec.Tags, codec.TagPair{Name: t.Name, Value: t.Value, HasValue: t.HasValue})
		}
		entries = append(entries, rec)
	}

	n, err := s.persist.Write(l.Name, uint64(l.MaxLines), uint64(l.MaxTime), entries, s.checker)
	if err != nil {
		if s.metrics != nil {
			s.metrics.DiskErrors.Inc()
		}
		return err
	}
	s.tickBytes += n
	l.Dirty = false
	return nil
}

func (s *Store) updateGauges() {
	all := s.objects.All()
	dirty := 0
	lines := 0
	for _, l := range all {
		if l.Dirty {
			dirty++
		}
		lines += l.NumLines
	}
	s.metrics.ObjectsTotal.Set(float64(len(all)))
	s.metrics.DirtyObjects.Set(float64(dirty))
	s.metrics.LinesTotal.Set(float64(lines))
}

func (s *Store) warn(err error) {
	s.logger.Warn().Err(err).Msg("history: add on object with no limit, applying release defaults")
}

// DescribeCapability reports the capability string advertised to clients
// (spec.md §4.6/§6): "memory" or "memory,disk=encrypted".
func (s *Store) DescribeCapability() string {
	return s.cfg.Capability()
}
