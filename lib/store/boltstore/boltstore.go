// Package boltstore implements store.Backend on bbolt, single file,
// single writer. Records are CBOR encoded.
package boltstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"newsbase/lib/store"
	"newsbase/lib/utils/logx"
)

var (
	bucketGroups   = []byte("groups")
	bucketArticles = []byte("articles")
	bucketRefs     = []byte("refs")     // msgid \0 group -> number
	bucketOver     = []byte("over")     // group -> number -> row
	bucketHistory  = []byte("history")  // msgid -> removal time
	bucketMeta     = []byte("meta")
)

const (
	metaVersionKey = "version"
	currDbVersion  = "nb1"
)

type Config struct {
	Path        string
	LockTimeout float64 // seconds to wait for file lock
	NoSync      bool    // for tests only
	Logger      logx.LoggerX
}

var DefaultConfig = Config{
	LockTimeout: 5.0,
}

type DB struct {
	db  *bolt.DB
	log logx.Logger
	id  string
}

var _ store.Backend = (*DB)(nil)

func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("bolt path not specified")
	}
	bdb, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{
		Timeout: time.Duration(float64(time.Second) * cfg.LockTimeout),
		NoSync:  cfg.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening %q: %w", cfg.Path, err)
	}
	d := &DB{db: bdb}
	d.id = fmt.Sprintf("boltstore.%p", bdb)
	d.log = logx.NewLogToX(cfg.Logger, d.id)

	if err = d.initDB(); err != nil {
		bdb.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) initDB() error {
	return d.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if v := meta.Get([]byte(metaVersionKey)); v != nil {
			if string(v) != currDbVersion {
				return fmt.Errorf(
					"incorrect schema version: %q (our: %q)", v, currDbVersion)
			}
			return nil
		}
		d.log.LogPrint(logx.NOTICE, "uninitialized db, initializing")
		for _, b := range [][]byte{
			bucketGroups, bucketArticles, bucketRefs, bucketOver, bucketHistory} {

			if _, err = tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return meta.Put([]byte(metaVersionKey), []byte(currDbVersion))
	})
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) ID() string {
	return d.id
}

func (d *DB) Update(ctx context.Context, fn func(store.Tx) error) error {
	return d.run(ctx, true, fn)
}

func (d *DB) View(ctx context.Context, fn func(store.Tx) error) error {
	return d.run(ctx, false, fn)
}

// run executes bolt transaction in separate goroutine so that caller
// is released when ctx is done even if writer lock is held by someone else.
// Transaction observes ctx and rolls back once it's done.
func (d *DB) run(ctx context.Context, writable bool, fn func(store.Tx) error) error {
	if err := store.CtxErr(ctx); err != nil {
		return err
	}

	btxfn := func(tx *bolt.Tx) error {
		if err := store.CtxErr(ctx); err != nil {
			return err
		}
		if err := fn(&boltTx{tx: tx, ctx: ctx}); err != nil {
			return err
		}
		return store.CtxErr(ctx)
	}

	done := make(chan error, 1)
	go func() {
		if writable {
			done <- d.db.Update(btxfn)
		} else {
			done <- d.db.View(btxfn)
		}
	}()

	select {
	case err := <-done:
		return d.boltError(err)
	case <-ctx.Done():
		// prefer real outcome if it's already there
		select {
		case err := <-done:
			return d.boltError(err)
		default:
		}
		d.log.LogPrintf(logx.WARN, "transaction abandoned: %v", ctx.Err())
		return store.Unavailable(ctx.Err())
	}
}

func (d *DB) boltError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bolt.ErrDatabaseNotOpen) ||
		errors.Is(err, bolt.ErrTimeout) {

		return store.Unavailable(err)
	}
	return err
}
