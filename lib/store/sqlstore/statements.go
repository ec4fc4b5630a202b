package sqlstore

import (
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"

	"newsbase/lib/utils/sqlbucket"
)

//go:embed statements/*.sql
var statementFS embed.FS

type statements sqlbucket.Bucket

func loadStatements(dialect string) (statements, error) {
	switch dialect {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", dialect)
	}
	base, err := sqlbucket.New().
		LoadFromFS(statementFS, "statements/common.sql")
	if err != nil {
		return nil, fmt.Errorf("err loading common statements: %w", err)
	}
	st, err := sqlbucket.New().
		WithBase(base).
		LoadFromFS(statementFS, "statements/"+dialect+".sql")
	if err != nil {
		return nil, fmt.Errorf("err loading %s statements: %w", dialect, err)
	}
	for _, n := range requiredStatements {
		if len(st[n]) == 0 {
			return nil, fmt.Errorf("statement %q missing for %s", n, dialect)
		}
	}
	return statements(st), nil
}

var requiredStatements = [...]string{
	"version", "init", "has_schema", "server_version", "lock_article",
	"get_version", "set_version",
	"create_group", "get_group", "list_groups", "set_group_posting",
	"next_article_number", "set_low_water",
	"insert_overview", "scan_overview", "scan_expired",
	"overview_lowest", "delete_overview",
	"in_history", "insert_article", "get_article", "article_refs",
	"count_refs", "delete_article", "add_history", "prune_history",
}

// rebind converts ? placeholders into driver's style.
func (st statements) rebind(db *sqlx.DB) sqlbucket.Bucket {
	b := make(sqlbucket.Bucket, len(st))
	for k, qs := range st {
		if k == "version" {
			b[k] = qs
			continue
		}
		rb := make([]string, len(qs))
		for i, q := range qs {
			rb[i] = db.Rebind(q)
		}
		b[k] = rb
	}
	return b
}
