package errors

import (
	"context"
	stderrs "errors"
	"strings"
)

// IsSQLiteBusy reports whether err is SQLite lock contention (SQLITE_BUSY / SQLITE_LOCKED).
// The modernc driver surfaces these as text, so matching is on the message
func IsSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}
	s := strings.ToLower(Root(err).Error())
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "sqlite_busy") ||
		strings.Contains(s, "database table is locked")
}
