// Package history implements the Public API of spec.md §4.6, wiring
// together the object store, log, replay, scheduler, and persistence
// packages behind the operations the host chat server calls:
// add/request/set_limit/destroy/tick plus init/reload_config/shutdown.
//
// The host chat server itself — channel existence, mode flags, user
// plumbing, message-tag wire parsing — is out of scope (spec.md §1) and
// crosses this boundary only through the PersistChecker interface below.
package history

import "github.com/adred-codev/chanhistory/internal/persistence"

// PersistChecker is the one piece of host state this module needs: does
// an object still carry the history-persistence mode right now. It gates
// whether a dirty log is actually written to disk on tick (spec.md §4.5
// write algorithm step 1).
type PersistChecker = persistence.PersistChecker

// PersistModeChar is the mode character OnModeLost compares against,
// matching the 'P' (history-persist) channel mode in the original
// UnrealIRCd module this spec is grounded on.
const PersistModeChar = 'P'
