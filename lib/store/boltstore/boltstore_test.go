package boltstore_test

import (
	"path/filepath"
	"testing"

	"newsbase/lib/store/boltstore"
	"newsbase/lib/store/storetest"
)

func TestBolt(t *testing.T) {
	storetest.Run(t, storetest.OpenBolt)
}

func TestReopen(t *testing.T) {
	cfg := boltstore.DefaultConfig
	cfg.Path = filepath.Join(t.TempDir(), "re.bolt")
	db, err := boltstore.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()
	db, err = boltstore.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	db.Close()
}

func TestMissingPath(t *testing.T) {
	if _, err := boltstore.Open(boltstore.DefaultConfig); err == nil {
		t.Error("expected error")
	}
}
