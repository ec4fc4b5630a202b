package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"newsbase/lib/store"
	"newsbase/lib/store/sqlstore"
	"newsbase/lib/store/storetest"
)

func TestSQLite(t *testing.T) {
	storetest.Run(t, storetest.OpenSQLite)
}

func TestPostgres(t *testing.T) {
	if !storetest.HavePostgres() {
		t.Skip("PG_HOST not set")
	}
	storetest.Run(t, storetest.OpenPostgres)
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := sqlstore.DefaultConfig
	cfg.Driver = sqlstore.DriverSQLite
	cfg.ConnStr = sqlstore.SQLiteDSN(filepath.Join(t.TempDir(), "re.db"))
	cfg.Logger = storetest.Logger(t)

	db, err := sqlstore.OpenAndPrepare(cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	err = db.Update(context.Background(), func(tx store.Tx) error {
		return tx.CreateGroup(store.Group{Name: "misc.test"})
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	db.Close()

	db, err = sqlstore.OpenAndPrepare(cfg)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db.Close()
	ok, err := db.CheckDB(context.Background())
	if !ok || err != nil {
		t.Errorf("CheckDB: %v %v", ok, err)
	}
	err = db.View(context.Background(), func(tx store.Tx) error {
		_, err := tx.GetGroup("misc.test")
		return err
	})
	if err != nil {
		t.Errorf("group lost after reopen: %v", err)
	}
}

func TestLogSQL(t *testing.T) {
	cfg := sqlstore.DefaultConfig
	cfg.Driver = sqlstore.DriverSQLite
	cfg.ConnStr = sqlstore.SQLiteDSN(filepath.Join(t.TempDir(), "log.db"))
	cfg.LogSQL = true
	cfg.Logger = storetest.Logger(t)

	db, err := sqlstore.OpenAndPrepare(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	// multi-row reads go through traced driver too
	ctx := context.Background()
	names := []string{"misc.a", "misc.b", "misc.c"}
	err = db.Update(ctx, func(tx store.Tx) error {
		for _, n := range names {
			if err := tx.CreateGroup(store.Group{Name: n}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var got []string
	err = db.View(ctx, func(tx store.Tx) error {
		return tx.ListGroups(func(g store.Group) error {
			got = append(got, g.Name)
			return nil
		})
	})
	if err != nil || len(got) != len(names) {
		t.Errorf("list: %v %v", got, err)
	}
}

func TestUnknownDriver(t *testing.T) {
	cfg := sqlstore.DefaultConfig
	cfg.Driver = "oracle"
	if _, err := sqlstore.Open(cfg); err == nil {
		t.Error("expected error")
	}
}
