package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"

	"github.com/luna-duclos/instrumentedsql"

	"newsbase/lib/utils/logx"
)

var (
	instrumentedMu   sync.Mutex
	instrumentedSink logx.Logger = logx.NewLogToX(nil, "sql")
	instrumentedOnce = map[string]*sync.Once{
		DriverPostgres: new(sync.Once),
		DriverSQLite:   new(sync.Once),
	}
)

func sqlLogger() logx.Logger {
	instrumentedMu.Lock()
	defer instrumentedMu.Unlock()
	return instrumentedSink
}

// instrumentedDriver registers tracing wrapper around dialect's driver
// once per process and returns its name. Latest logger wins.
func instrumentedDriver(dialect string, lx logx.LoggerX) string {
	instrumentedMu.Lock()
	instrumentedSink = logx.NewLogToX(lx, "sql")
	instrumentedMu.Unlock()

	name := "instrumented-" + dialect
	instrumentedOnce[dialect].Do(func() {
		drv := registeredDriver(dialect)
		logger := instrumentedsql.LoggerFunc(
			func(ctx context.Context, msg string, keyvals ...interface{}) {
				sqlLogger().LogPrintf(logx.DEBUG, "SQL: %s %v", msg, keyvals)
			})
		sql.Register(name,
			instrumentedsql.WrapDriver(drv,
				instrumentedsql.WithLogger(logger),
				instrumentedsql.WithOpsExcluded(instrumentedsql.OpSQLRowsNext)))
	})
	return name
}

// registeredDriver digs out driver registered under name; sql.Open doesn't connect.
func registeredDriver(name string) driver.Driver {
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	defer db.Close()
	return db.Driver()
}
