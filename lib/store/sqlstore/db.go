package sqlstore

// schema management

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	schemaComponent = "newsbase"
	currDbVersion   = "nb1"
)

func (d *DB) InitDB(ctx context.Context) (err error) {
	var opts *sql.TxOptions
	if d.dialect == DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	tx, err := d.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("err on BeginTx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	fvr := d.st.One("version")
	if fvr != currDbVersion {
		return fmt.Errorf(
			"wrong sql file version %v want %v", fvr, currDbVersion)
	}

	for j, s := range d.st["init"] {
		_, err = tx.ExecContext(ctx, s)
		if err != nil {
			return fmt.Errorf("err on stmt %d: %w", j, err)
		}
	}

	_, err = tx.ExecContext(ctx, d.st.One("set_version"), schemaComponent, currDbVersion)
	if err != nil {
		return fmt.Errorf("err on version stmt: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		err = fmt.Errorf("err on Commit: %w", err)
	}
	return
}

// CheckDB reports whether schema exists, and error if it's of wrong version.
func (d *DB) CheckDB(ctx context.Context) (initialised bool, versionerror error) {
	if d.dialect == DriverPostgres {
		var vernum int64
		err := d.db.QueryRowContext(ctx, d.st.One("server_version")).Scan(&vernum)
		if err != nil {
			return false, d.sqlError("server version query", err)
		}
		const verreq = 100000
		if vernum < verreq {
			return false, fmt.Errorf(
				"we require at least server version %d, got %d", verreq, vernum)
		}
	}

	var has bool
	err := d.db.QueryRowContext(ctx, d.st.One("has_schema")).Scan(&has)
	if err != nil {
		return false, d.sqlError("schema presence query", err)
	}
	if !has {
		return false, nil
	}

	var ver string
	err = d.db.QueryRowContext(ctx, d.st.One("get_version"), schemaComponent).Scan(&ver)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, d.sqlError("version row query", err)
	}

	if ver != currDbVersion {
		return true, fmt.Errorf(
			"incorrect %s schema version: %q (our: %q)",
			schemaComponent, ver, currDbVersion)
	}

	return true, nil
}
