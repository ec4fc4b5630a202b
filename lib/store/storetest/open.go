// Package storetest provides backends for tests and conformance suite
// every store.Backend implementation must pass.
package storetest

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/lib/pq"

	"newsbase/lib/store"
	"newsbase/lib/store/boltstore"
	"newsbase/lib/store/sqlstore"
	"newsbase/lib/utils/filelogger"
	"newsbase/lib/utils/logx"
)

func envOrDefault(v, d string) (s string) {
	s = os.Getenv(v)
	if s == "" {
		s = d
	}
	return
}

var (
	psqlHost = envOrDefault("PG_HOST", "")

	admUser = envOrDefault("PG_ADMIN_USER", "postgres")
	admDB   = envOrDefault("PG_ADMIN_DB", "postgres")

	testUser = envOrDefault("PG_TEST_USER", "tester0")
)

// Logger returns logger writing to test log; only warnings and worse.
func Logger(t testing.TB) logx.LoggerX {
	return filelogger.NewWriterLogger(testWriter{t}, logx.WARN)
}

type testWriter struct{ t testing.TB }

func (w testWriter) Write(b []byte) (int, error) {
	w.t.Log(string(b))
	return len(b), nil
}

// Opener creates fresh empty backend, cleaned up with t.
type Opener func(t testing.TB) store.Backend

func OpenSQLite(t testing.TB) store.Backend {
	cfg := sqlstore.DefaultConfig
	cfg.Driver = sqlstore.DriverSQLite
	cfg.ConnStr = sqlstore.SQLiteDSN(filepath.Join(t.TempDir(), "news.db"))
	cfg.Logger = Logger(t)
	db, err := sqlstore.OpenAndPrepare(cfg)
	if err != nil {
		panic("sqlite OpenAndPrepare err: " + err.Error())
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func OpenBolt(t testing.TB) store.Backend {
	cfg := boltstore.DefaultConfig
	cfg.Path = filepath.Join(t.TempDir(), "news.bolt")
	cfg.NoSync = true
	cfg.Logger = Logger(t)
	db, err := boltstore.Open(cfg)
	if err != nil {
		panic("bolt Open err: " + err.Error())
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testDBName() string {
	nBig, err := rand.Int(rand.Reader, big.NewInt(0x3FffFFffFFffFFff+1))
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("newsbase_test_%d", nBig.Int64())
}

func execAdmCmd(cmd string) {
	db, err := sql.Open(
		"postgres",
		"user="+admUser+" dbname="+admDB+" host="+psqlHost+" sslmode=disable")
	if err != nil {
		panic("sql.Open err: " + err.Error())
	}
	defer db.Close()

	_, err = db.Exec(cmd)
	if err != nil {
		panic("db.Exec err: " + err.Error())
	}
}

// HavePostgres reports whether PG_HOST points to test server.
func HavePostgres() bool {
	return psqlHost != ""
}

// OpenPostgres creates throwaway database; test is skipped without PG_HOST.
func OpenPostgres(t testing.TB) store.Backend {
	if !HavePostgres() {
		t.Skip("PG_HOST not set")
	}
	dbn := testDBName()
	execAdmCmd(fmt.Sprintf(
		"CREATE DATABASE %s OWNER %s ENCODING 'UTF8'", dbn, testUser))

	cfg := sqlstore.DefaultConfig
	cfg.ConnStr = "user=" + testUser + " dbname=" + dbn + " host=" + psqlHost + " sslmode=disable"
	cfg.Logger = Logger(t)
	db, err := sqlstore.OpenAndPrepare(cfg)
	if err != nil {
		execAdmCmd(fmt.Sprintf("DROP DATABASE %s", dbn))
		panic("postgres OpenAndPrepare err: " + err.Error())
	}
	t.Cleanup(func() {
		db.Close()
		execAdmCmd(fmt.Sprintf("DROP DATABASE %s", dbn))
	})
	return db
}

// Openers lists every backend available in this environment.
func Openers() map[string]Opener {
	m := map[string]Opener{
		"sqlite": OpenSQLite,
		"bolt":   OpenBolt,
	}
	if HavePostgres() {
		m["postgres"] = OpenPostgres
	}
	return m
}
