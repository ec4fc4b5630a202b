package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"runtime/debug"

	"github.com/lib/pq"
	"golang.org/x/xerrors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"newsbase/lib/store"
	"newsbase/lib/utils/logx"
)

// isTransient reports failures which may go away on retry.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) {

		return true
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		switch pqerr.Code.Class() {
		case "08", // connection exception
			"40", // transaction rollback: serialization failure, deadlock
			"53", // insufficient resources
			"57": // operator intervention
			return true
		}
		return false
	}
	var sqerr *sqlite.Error
	if errors.As(err, &sqerr) {
		switch sqerr.Code() & 0xFF {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

// SQLError logs and formats error message. if l is nil it doesn't log.
// Transient failures are marked with store.ErrBackendUnavailable
// and logged without stack.
func SQLError(l logx.Logger, when string, err error) error {
	if isTransient(err) {
		err = store.Unavailable(err)
		werr := xerrors.Errorf("error on %s: %w", when, err)
		if l != nil {
			l.LogPrint(logx.WARN, werr.Error())
		}
		return werr
	}
	werr := xerrors.Errorf("error on %s: %w", when, err)
	if l != nil && l.Level() <= logx.ERROR {
		l.LogPrint(logx.ERROR, werr.Error())
		if l.LockWrite(logx.ERROR) {
			l.Write(debug.Stack())
			l.Close()
		}
	}
	return werr
}

func (d *DB) sqlError(when string, err error) error {
	return SQLError(d.log, when, err)
}
