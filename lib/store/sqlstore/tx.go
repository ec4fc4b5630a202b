package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"newsbase/lib/mail"
	"newsbase/lib/minimail"
	"newsbase/lib/store"
	"newsbase/lib/utils/hashtools"
)

// timestamps are kept as unix microseconds
func toDB(t time.Time) int64 {
	return t.UnixMicro()
}

func fromDB(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

type groupRec struct {
	Name        string `db:"name"`
	Posting     string `db:"posting"`
	Description string `db:"description"`
	Low         int64  `db:"low_water"`
	High        int64  `db:"high_water"`
	Created     int64  `db:"created"`
}

func (r groupRec) group() store.Group {
	p, _ := store.ParsePostingStatus(r.Posting)
	return store.Group{
		Name:        r.Name,
		Posting:     p,
		Description: r.Description,
		Low:         r.Low,
		High:        r.High,
		Created:     fromDB(r.Created),
	}
}

type overviewRec struct {
	Group     string `db:"group_name"`
	Num       int64  `db:"num"`
	MessageID string `db:"message_id"`
	Subject   string `db:"subject"`
	From      string `db:"from_hdr"`
	Date      int64  `db:"hdr_date"`
	Refs      string `db:"refs"`
	Bytes     int64  `db:"bytes"`
	Lines     int64  `db:"lines"`
	PostedAt  int64  `db:"posted_at"`
}

func (r overviewRec) row() store.OverviewRow {
	return store.OverviewRow{
		Group:     r.Group,
		Number:    r.Num,
		MessageID: minimail.FullMsgID(r.MessageID),
		Snapshot: store.Snapshot{
			Subject:    r.Subject,
			From:       r.From,
			Date:       fromDB(r.Date),
			References: r.Refs,
			Bytes:      r.Bytes,
			Lines:      r.Lines,
		},
		PostedAt: fromDB(r.PostedAt),
	}
}

type articleRec struct {
	MessageID  string `db:"message_id"`
	Headers    string `db:"headers"`
	Body       []byte `db:"body"`
	Newsgroups string `db:"newsgroups"`
	PostedAt   int64  `db:"posted_at"`
	Poster     string `db:"poster"`
	Digest     []byte `db:"digest"`
}

type sqlTx struct {
	d   *DB
	tx  *sqlx.Tx
	ctx context.Context
}

func (t *sqlTx) q(name string) string {
	return t.d.st.One(name)
}

func (t *sqlTx) err(when string, err error) error {
	return t.d.sqlError(when, err)
}

func (t *sqlTx) CreateGroup(g store.Group) error {
	if err := store.CheckGroupName(g.Name); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx, t.q("create_group"),
		g.Name, g.Posting.String(), g.Description, toDB(g.Created))
	if err != nil {
		return t.err("create_group", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return t.err("create_group rows", err)
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", g.Name, store.ErrGroupExists)
	}
	return nil
}

func (t *sqlTx) GetGroup(name string) (store.Group, error) {
	var r groupRec
	err := t.tx.GetContext(t.ctx, &r, t.q("get_group"), name)
	if err != nil {
		if err == sql.ErrNoRows {
			return store.Group{}, fmt.Errorf("%q: %w", name, store.ErrGroupNotFound)
		}
		return store.Group{}, t.err("get_group", err)
	}
	return r.group(), nil
}

func (t *sqlTx) ListGroups(fn func(store.Group) error) error {
	var rs []groupRec
	if err := t.tx.SelectContext(t.ctx, &rs, t.q("list_groups")); err != nil {
		return t.err("list_groups", err)
	}
	for _, r := range rs {
		if err := fn(r.group()); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) SetGroupPosting(name string, p store.PostingStatus) error {
	res, err := t.tx.ExecContext(t.ctx, t.q("set_group_posting"), p.String(), name)
	if err != nil {
		return t.err("set_group_posting", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%q: %w", name, store.ErrGroupNotFound)
	}
	return nil
}

func (t *sqlTx) NextArticleNumber(group string) (num int64, err error) {
	err = t.tx.QueryRowxContext(t.ctx, t.q("next_article_number"), group).Scan(&num)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("%q: %w", group, store.ErrGroupNotFound)
		}
		return 0, t.err("next_article_number", err)
	}
	return
}

func (t *sqlTx) SetLowWater(group string, low int64) error {
	_, err := t.tx.ExecContext(t.ctx, t.q("set_low_water"), low, group)
	if err != nil {
		return t.err("set_low_water", err)
	}
	return nil
}

func (t *sqlTx) InsertOverview(row store.OverviewRow) error {
	_, err := t.tx.ExecContext(t.ctx, t.q("insert_overview"),
		row.Group, row.Number, string(row.MessageID),
		row.Subject, row.From, toDB(row.Date), row.References,
		row.Bytes, row.Lines, toDB(row.PostedAt))
	if err != nil {
		return t.err("insert_overview", err)
	}
	return nil
}

func (t *sqlTx) scanRows(
	when string, fn func(store.OverviewRow) error,
	query string, args ...interface{}) error {

	// rows are drained before fn runs; fn may issue statements on same tx
	var rs []overviewRec
	if err := t.tx.SelectContext(t.ctx, &rs, query, args...); err != nil {
		return t.err(when, err)
	}
	for _, r := range rs {
		if err := fn(r.row()); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) ScanOverview(
	group string, lo, hi int64, limit int, fn func(store.OverviewRow) error) error {

	return t.scanRows("scan_overview", fn,
		t.q("scan_overview"), group, lo, hi, t.limitArg(limit))
}

func (t *sqlTx) ScanExpired(
	group string, maxNum int64, cutoff time.Time, limit int,
	fn func(store.OverviewRow) error) error {

	return t.scanRows("scan_expired", fn,
		t.q("scan_expired"), group, maxNum, toDB(cutoff), t.limitArg(limit))
}

// limitArg maps non-positive limit to LIMIT value meaning no limit.
func (t *sqlTx) limitArg(limit int) interface{} {
	if limit > 0 {
		return limit
	}
	if t.d.dialect == DriverPostgres {
		return nil // LIMIT NULL
	}
	return -1
}

func (t *sqlTx) OverviewLowest(group string) (int64, bool, error) {
	var n sql.NullInt64
	err := t.tx.QueryRowxContext(t.ctx, t.q("overview_lowest"), group).Scan(&n)
	if err != nil {
		return 0, false, t.err("overview_lowest", err)
	}
	return n.Int64, n.Valid, nil
}

func (t *sqlTx) DeleteOverview(group string, num int64) error {
	_, err := t.tx.ExecContext(t.ctx, t.q("delete_overview"), group, num)
	if err != nil {
		return t.err("delete_overview", err)
	}
	return nil
}

func (t *sqlTx) InsertArticle(a *store.Article) (bool, error) {
	var inHist int64
	err := t.tx.QueryRowxContext(t.ctx, t.q("in_history"), string(a.MessageID)).Scan(&inHist)
	if err != nil {
		return false, t.err("in_history", err)
	}
	if inHist != 0 {
		return false, nil
	}

	hj, err := json.Marshal(a.Headers)
	if err != nil {
		return false, fmt.Errorf("headers of %s: %w", a.MessageID, err)
	}
	body := a.Body
	if body == nil {
		// NOT NULL column
		body = []byte{}
	}
	res, err := t.tx.ExecContext(t.ctx, t.q("insert_article"),
		string(a.MessageID), string(hj), body,
		strings.Join(a.Newsgroups, ","), toDB(a.PostedAt),
		a.Poster, a.Digest[:])
	if err != nil {
		return false, t.err("insert_article", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, t.err("insert_article rows", err)
	}
	return n != 0, nil
}

func (t *sqlTx) GetArticle(id minimail.FullMsgID) (*store.Article, error) {
	var r articleRec
	err := t.tx.GetContext(t.ctx, &r, t.q("get_article"), string(id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", id, store.ErrArticleNotFound)
		}
		return nil, t.err("get_article", err)
	}
	a := &store.Article{
		MessageID:  minimail.FullMsgID(r.MessageID),
		Body:       r.Body,
		Newsgroups: mail.SplitNewsgroups(r.Newsgroups),
		PostedAt:   fromDB(r.PostedAt),
		Poster:     r.Poster,
	}
	if err = json.Unmarshal([]byte(r.Headers), &a.Headers); err != nil {
		return nil, fmt.Errorf("%s: bad stored headers: %v: %w", id, err, store.ErrIntegrity)
	}
	if len(r.Digest) != hashtools.DigestSize {
		return nil, fmt.Errorf("%s: bad stored digest: %w", id, store.ErrIntegrity)
	}
	copy(a.Digest[:], r.Digest)
	return a, nil
}

func (t *sqlTx) ArticleRefs(id minimail.FullMsgID) (refs []store.ArticleRef, err error) {
	var rs []struct {
		Group string `db:"group_name"`
		Num   int64  `db:"num"`
	}
	if err = t.tx.SelectContext(t.ctx, &rs, t.q("article_refs"), string(id)); err != nil {
		return nil, t.err("article_refs", err)
	}
	for _, r := range rs {
		refs = append(refs, store.ArticleRef{Group: r.Group, Number: r.Num})
	}
	return
}

func (t *sqlTx) DeleteArticleIfUnreferenced(id minimail.FullMsgID) (bool, error) {
	// lock article row so that concurrent sweeps of other groups
	// see each other's deletions before counting
	var one int
	err := t.tx.QueryRowxContext(t.ctx, t.q("lock_article"), string(id)).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, t.err("lock_article", err)
	}

	var refs int64
	err = t.tx.QueryRowxContext(t.ctx, t.q("count_refs"), string(id)).Scan(&refs)
	if err != nil {
		return false, t.err("count_refs", err)
	}
	if refs != 0 {
		return false, nil
	}

	if _, err = t.tx.ExecContext(t.ctx, t.q("delete_article"), string(id)); err != nil {
		return false, t.err("delete_article", err)
	}
	return true, nil
}

func (t *sqlTx) AddHistory(id minimail.FullMsgID, at time.Time) error {
	_, err := t.tx.ExecContext(t.ctx, t.q("add_history"), string(id), toDB(at))
	if err != nil {
		return t.err("add_history", err)
	}
	return nil
}

func (t *sqlTx) PruneHistory(before time.Time) (int64, error) {
	res, err := t.tx.ExecContext(t.ctx, t.q("prune_history"), toDB(before))
	if err != nil {
		return 0, t.err("prune_history", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, t.err("prune_history rows", err)
	}
	return n, nil
}
