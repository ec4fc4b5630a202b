package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"newsbase/lib/store"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{context.DeadlineExceeded, true},
		{fmt.Errorf("x: %w", context.Canceled), true},
		{driver.ErrBadConn, true},
		{&pq.Error{Code: "40001"}, true},
		{&pq.Error{Code: "40P01"}, true},
		{&pq.Error{Code: "08006"}, true},
		{&pq.Error{Code: "57P01"}, true},
		{&pq.Error{Code: "23505"}, false},
		{errors.New("syntax"), false},
	}
	for i, tc := range tests {
		if got := isTransient(tc.err); got != tc.want {
			t.Errorf("%d: %v: expected %v got %v", i, tc.err, tc.want, got)
		}
	}
}

func TestSQLErrorWraps(t *testing.T) {
	err := SQLError(nil, "thing", &pq.Error{Code: "40001"})
	if !store.IsRetryable(err) {
		t.Errorf("serialization failure not retryable: %v", err)
	}
	var pqe *pq.Error
	if !errors.As(err, &pqe) {
		t.Error("lost underlying error")
	}
	err = SQLError(nil, "thing", errors.New("boom"))
	if store.IsRetryable(err) {
		t.Errorf("plain error marked retryable: %v", err)
	}
}

func TestStatementsLoad(t *testing.T) {
	for _, d := range []string{DriverPostgres, DriverSQLite} {
		st, err := loadStatements(d)
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		if len(st["init"]) < 5 {
			t.Errorf("%s: schema too short: %d statements", d, len(st["init"]))
		}
		if st["version"][0] != currDbVersion {
			t.Errorf("%s: version %q", d, st["version"][0])
		}
	}
}
