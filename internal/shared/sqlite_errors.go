// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

// Lock contention kinds reported by SQLiteConflict.
const (
	ConflictBusy   = "busy"
	ConflictLocked = "locked"
)

// sqliteConflictMarkers maps driver error text to a contention kind. modernc
// reports these only through the error message.
var sqliteConflictMarkers = []struct {
	marker string
	kind   string
}{
	{"SQLITE_BUSY", ConflictBusy},
	{"database is locked", ConflictLocked},
	{"SQLITE_LOCKED", ConflictLocked},
}

// SQLiteConflict reports whether err is lock contention worth retrying, and
// which kind.
func SQLiteConflict(err error) (kind string, ok bool) {
	if err == nil {
		return "", false
	}
	msg := err.Error()
	for _, m := range sqliteConflictMarkers {
		if strings.Contains(msg, m.marker) {
			return m.kind, true
		}
	}
	return "", false
}
