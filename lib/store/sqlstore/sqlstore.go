// Package sqlstore implements store.Backend on top of relational
// database: PostgreSQL for deployments, SQLite for single node and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"newsbase/lib/store"
	"newsbase/lib/utils/logx"
	"newsbase/lib/utils/sqlbucket"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver          string
	ConnStr         string
	ConnMaxLifetime float64 // seconds
	MaxIdleConns    int32
	MaxOpenConns    int32
	LogSQL          bool // trace statements at DEBUG
	Logger          logx.LoggerX
}

var DefaultConfig = Config{
	Driver:          DriverPostgres,
	ConnStr:         "",
	ConnMaxLifetime: 0.0,
	MaxIdleConns:    0,
	MaxOpenConns:    0,
}

type DB struct {
	db      *sqlx.DB
	dialect string
	st      sqlbucket.Bucket
	log     logx.Logger
	id      string
}

var _ store.Backend = (*DB)(nil)

// SQLiteDSN returns connection string for SQLite file with settings
// this package expects.
func SQLiteDSN(path string) string {
	return path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(wal)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
}

func Open(cfg Config) (*DB, error) {
	st, err := loadStatements(cfg.Driver)
	if err != nil {
		return nil, err
	}

	drv := cfg.Driver
	if cfg.LogSQL {
		drv = instrumentedDriver(cfg.Driver, cfg.Logger)
	}
	sdb, err := sql.Open(drv, cfg.ConnStr)
	if err != nil {
		return nil, err
	}
	// sqlx picks placeholder style from name
	sqlxName := cfg.Driver
	if cfg.Driver == DriverSQLite {
		sqlxName = "sqlite3"
	}
	db := sqlx.NewDb(sdb, sqlxName)

	if cfg.ConnMaxLifetime > 0.0 {
		db.SetConnMaxLifetime(
			time.Duration(float64(time.Second) *
				cfg.ConnMaxLifetime))
	}

	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(int(cfg.MaxIdleConns))
	}

	if cfg.Driver == DriverSQLite {
		// single writer anyway; avoids SQLITE_BUSY between own connections
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxOpenConns))
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, store.Unavailable(err)
	}

	d := &DB{db: db, dialect: cfg.Driver}
	d.id = fmt.Sprintf("sqlstore.%p", d.db)
	d.log = logx.NewLogToX(cfg.Logger, d.id)
	d.st = st.rebind(db)

	return d, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) ID() string {
	return d.id
}

// OpenAndPrepare opens database, initializing schema when it's empty.
func OpenAndPrepare(cfg Config) (d *DB, err error) {
	d, err = Open(cfg)
	if err != nil {
		err = fmt.Errorf("error opening: %w", err)
		return
	}
	defer func() {
		if err != nil {
			d.Close()
			d = nil
		}
	}()

	ctx := context.Background()

	valid, err := d.CheckDB(ctx)
	if err != nil {
		err = fmt.Errorf("error validating: %w", err)
		return
	}
	// if not valid, try to create
	if !valid {
		d.log.LogPrint(logx.NOTICE, "uninitialized db, attempting to initialize")

		if err = d.InitDB(ctx); err != nil {
			err = fmt.Errorf("error initializing: %w", err)
			return
		}

		// revalidate
		valid, err = d.CheckDB(ctx)
		if err != nil {
			err = fmt.Errorf("error validating (2): %w", err)
			return
		}
		if !valid {
			err = errors.New("database still not valid after initialization")
			return
		}
	}

	return
}

func (d *DB) txOptions() *sql.TxOptions {
	if d.dialect == DriverPostgres {
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return nil
}

func (d *DB) Update(ctx context.Context, fn func(store.Tx) error) error {
	return d.run(ctx, "update", fn)
}

func (d *DB) View(ctx context.Context, fn func(store.Tx) error) error {
	return d.run(ctx, "view", fn)
}

func (d *DB) run(ctx context.Context, kind string, fn func(store.Tx) error) (err error) {
	if err = store.CtxErr(ctx); err != nil {
		return
	}

	tx, err := d.db.BeginTxx(ctx, d.txOptions())
	if err != nil {
		return d.sqlError(kind+" tx begin", err)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&sqlTx{d: d, tx: tx, ctx: ctx}); err != nil {
		return
	}
	// don't commit work whose caller already gave up
	if err = store.CtxErr(ctx); err != nil {
		return
	}

	done = true
	if err = tx.Commit(); err != nil {
		return d.sqlError(kind+" tx commit", err)
	}
	return nil
}
