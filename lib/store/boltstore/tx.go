package boltstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"newsbase/lib/minimail"
	"newsbase/lib/store"
)

type boltTx struct {
	tx  *bolt.Tx
	ctx context.Context
}

var _ store.Tx = (*boltTx)(nil)

func (t *boltTx) check() error {
	return store.CtxErr(t.ctx)
}

func (t *boltTx) loadGroup(name string) (groupRec, error) {
	var r groupRec
	v := t.tx.Bucket(bucketGroups).Get([]byte(name))
	if v == nil {
		return r, fmt.Errorf("%q: %w", name, store.ErrGroupNotFound)
	}
	if err := decMode.Unmarshal(v, &r); err != nil {
		return r, fmt.Errorf("group %q: %v: %w", name, err, store.ErrIntegrity)
	}
	return r, nil
}

func (t *boltTx) saveGroup(name string, r groupRec) error {
	v, err := encMode.Marshal(r)
	if err != nil {
		return err
	}
	return t.tx.Bucket(bucketGroups).Put([]byte(name), v)
}

func (r groupRec) group(name string) store.Group {
	p, _ := store.ParsePostingStatus(r.Posting)
	return store.Group{
		Name:        name,
		Posting:     p,
		Description: r.Description,
		Low:         r.Low,
		High:        r.High,
		Created:     r.Created,
	}
}

func (t *boltTx) CreateGroup(g store.Group) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := store.CheckGroupName(g.Name); err != nil {
		return err
	}
	if t.tx.Bucket(bucketGroups).Get([]byte(g.Name)) != nil {
		return fmt.Errorf("%q: %w", g.Name, store.ErrGroupExists)
	}
	if _, err := t.tx.Bucket(bucketOver).CreateBucketIfNotExists([]byte(g.Name)); err != nil {
		return err
	}
	return t.saveGroup(g.Name, groupRec{
		Posting:     g.Posting.String(),
		Description: g.Description,
		Low:         1,
		High:        0,
		Created:     g.Created.UTC(),
	})
}

func (t *boltTx) GetGroup(name string) (store.Group, error) {
	if err := t.check(); err != nil {
		return store.Group{}, err
	}
	r, err := t.loadGroup(name)
	if err != nil {
		return store.Group{}, err
	}
	return r.group(name), nil
}

func (t *boltTx) ListGroups(fn func(store.Group) error) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.tx.Bucket(bucketGroups).ForEach(func(k, v []byte) error {
		var r groupRec
		if err := decMode.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("group %q: %v: %w", k, err, store.ErrIntegrity)
		}
		return fn(r.group(string(k)))
	})
}

func (t *boltTx) SetGroupPosting(name string, p store.PostingStatus) error {
	if err := t.check(); err != nil {
		return err
	}
	r, err := t.loadGroup(name)
	if err != nil {
		return err
	}
	r.Posting = p.String()
	return t.saveGroup(name, r)
}

func (t *boltTx) NextArticleNumber(group string) (int64, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	r, err := t.loadGroup(group)
	if err != nil {
		return 0, err
	}
	r.High++
	if err = t.saveGroup(group, r); err != nil {
		return 0, err
	}
	return r.High, nil
}

func (t *boltTx) SetLowWater(group string, low int64) error {
	if err := t.check(); err != nil {
		return err
	}
	r, err := t.loadGroup(group)
	if err != nil {
		return err
	}
	r.Low = low
	return t.saveGroup(group, r)
}

func (t *boltTx) overBucket(group string) (*bolt.Bucket, error) {
	b := t.tx.Bucket(bucketOver).Bucket([]byte(group))
	if b == nil {
		return nil, fmt.Errorf("%q: %w", group, store.ErrGroupNotFound)
	}
	return b, nil
}

func (t *boltTx) InsertOverview(row store.OverviewRow) error {
	if err := t.check(); err != nil {
		return err
	}
	b, err := t.overBucket(row.Group)
	if err != nil {
		return err
	}
	k := numKey(row.Number)
	if b.Get(k) != nil {
		return fmt.Errorf("overview %s:%d already present: %w",
			row.Group, row.Number, store.ErrIntegrity)
	}
	v, err := encMode.Marshal(overviewRec{
		MessageID: string(row.MessageID),
		Snapshot:  row.Snapshot,
		PostedAt:  row.PostedAt.UTC(),
	})
	if err != nil {
		return err
	}
	if err = b.Put(k, v); err != nil {
		return err
	}
	return t.tx.Bucket(bucketRefs).Put(refKey(string(row.MessageID), row.Group), k)
}

func decodeRow(group string, k, v []byte) (store.OverviewRow, error) {
	var r overviewRec
	if err := decMode.Unmarshal(v, &r); err != nil {
		return store.OverviewRow{}, fmt.Errorf(
			"overview %s:%d: %v: %w", group, keyNum(k), err, store.ErrIntegrity)
	}
	return store.OverviewRow{
		Group:     group,
		Number:    keyNum(k),
		MessageID: minimail.FullMsgID(r.MessageID),
		Snapshot:  r.Snapshot,
		PostedAt:  r.PostedAt,
	}, nil
}

// scan collects matching rows first so that fn may modify bucket.
func (t *boltTx) scan(
	group string, lo, hi int64, limit int,
	match func(store.OverviewRow) bool, fn func(store.OverviewRow) error) error {

	if err := t.check(); err != nil {
		return err
	}
	b, err := t.overBucket(group)
	if err != nil {
		return err
	}
	if lo < 0 {
		lo = 0
	}
	var rows []store.OverviewRow
	c := b.Cursor()
	for k, v := c.Seek(numKey(lo)); k != nil && keyNum(k) <= hi; k, v = c.Next() {
		row, err := decodeRow(group, k, v)
		if err != nil {
			return err
		}
		if match != nil && !match(row) {
			continue
		}
		rows = append(rows, row)
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	for _, row := range rows {
		if err = fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (t *boltTx) ScanOverview(
	group string, lo, hi int64, limit int, fn func(store.OverviewRow) error) error {

	return t.scan(group, lo, hi, limit, nil, fn)
}

func (t *boltTx) ScanExpired(
	group string, maxNum int64, cutoff time.Time, limit int,
	fn func(store.OverviewRow) error) error {

	return t.scan(group, 0, maxNum, limit, func(r store.OverviewRow) bool {
		return r.PostedAt.Before(cutoff)
	}, fn)
}

func (t *boltTx) OverviewLowest(group string) (int64, bool, error) {
	if err := t.check(); err != nil {
		return 0, false, err
	}
	b, err := t.overBucket(group)
	if err != nil {
		return 0, false, err
	}
	k, _ := b.Cursor().First()
	if k == nil {
		return 0, false, nil
	}
	return keyNum(k), true, nil
}

func (t *boltTx) DeleteOverview(group string, num int64) error {
	if err := t.check(); err != nil {
		return err
	}
	b, err := t.overBucket(group)
	if err != nil {
		return err
	}
	k := numKey(num)
	v := b.Get(k)
	if v == nil {
		return nil
	}
	row, err := decodeRow(group, k, v)
	if err != nil {
		return err
	}
	if err = b.Delete(k); err != nil {
		return err
	}
	return t.tx.Bucket(bucketRefs).Delete(refKey(string(row.MessageID), group))
}

func (t *boltTx) InsertArticle(a *store.Article) (bool, error) {
	if err := t.check(); err != nil {
		return false, err
	}
	id := []byte(a.MessageID)
	if t.tx.Bucket(bucketHistory).Get(id) != nil ||
		t.tx.Bucket(bucketArticles).Get(id) != nil {

		return false, nil
	}
	v, err := encMode.Marshal(articleRec{
		Headers:    a.Headers,
		Body:       a.Body,
		Newsgroups: a.Newsgroups,
		PostedAt:   a.PostedAt.UTC(),
		Poster:     a.Poster,
		Digest:     a.Digest,
	})
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", a.MessageID, err)
	}
	if err = t.tx.Bucket(bucketArticles).Put(id, v); err != nil {
		return false, err
	}
	return true, nil
}

func (t *boltTx) GetArticle(id minimail.FullMsgID) (*store.Article, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	v := t.tx.Bucket(bucketArticles).Get([]byte(id))
	if v == nil {
		return nil, fmt.Errorf("%s: %w", id, store.ErrArticleNotFound)
	}
	var r articleRec
	if err := decMode.Unmarshal(v, &r); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", id, err, store.ErrIntegrity)
	}
	return &store.Article{
		MessageID:  id,
		Headers:    r.Headers,
		Body:       append([]byte{}, r.Body...),
		Newsgroups: r.Newsgroups,
		PostedAt:   r.PostedAt,
		Poster:     r.Poster,
		Digest:     r.Digest,
	}, nil
}

func (t *boltTx) refPrefix(id minimail.FullMsgID) []byte {
	return append([]byte(id), 0)
}

func (t *boltTx) ArticleRefs(id minimail.FullMsgID) (refs []store.ArticleRef, err error) {
	if err = t.check(); err != nil {
		return
	}
	pfx := t.refPrefix(id)
	c := t.tx.Bucket(bucketRefs).Cursor()
	for k, v := c.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, v = c.Next() {
		refs = append(refs, store.ArticleRef{
			Group:  string(k[len(pfx):]),
			Number: keyNum(v),
		})
	}
	return
}

func (t *boltTx) DeleteArticleIfUnreferenced(id minimail.FullMsgID) (bool, error) {
	if err := t.check(); err != nil {
		return false, err
	}
	arts := t.tx.Bucket(bucketArticles)
	if arts.Get([]byte(id)) == nil {
		return false, nil
	}
	pfx := t.refPrefix(id)
	if k, _ := t.tx.Bucket(bucketRefs).Cursor().Seek(pfx); k != nil && bytes.HasPrefix(k, pfx) {
		return false, nil
	}
	if err := arts.Delete([]byte(id)); err != nil {
		return false, err
	}
	return true, nil
}

func (t *boltTx) AddHistory(id minimail.FullMsgID, at time.Time) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.tx.Bucket(bucketHistory).Put([]byte(id), numKey(at.UnixMicro()))
}

func (t *boltTx) PruneHistory(before time.Time) (n int64, err error) {
	if err = t.check(); err != nil {
		return
	}
	lim := before.UnixMicro()
	b := t.tx.Bucket(bucketHistory)
	var del [][]byte
	err = b.ForEach(func(k, v []byte) error {
		if keyNum(v) < lim {
			del = append(del, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return
	}
	for _, k := range del {
		if err = b.Delete(k); err != nil {
			return
		}
		n++
	}
	return
}
