package storetest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"newsbase/lib/mail"
	"newsbase/lib/minimail"
	"newsbase/lib/store"
)

var baseTime = time.Date(2024, 1, 2, 3, 4, 5, 678000, time.UTC)

func update(t *testing.T, b store.Backend, fn func(store.Tx) error) {
	t.Helper()
	if err := b.Update(context.Background(), fn); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func view(t *testing.T, b store.Backend, fn func(store.Tx) error) {
	t.Helper()
	if err := b.View(context.Background(), fn); err != nil {
		t.Fatalf("view: %v", err)
	}
}

// TestArticle builds minimal consistent article.
func TestArticle(id string, groups ...string) *store.Article {
	var H mail.HeaderList
	H.Add("Message-ID", id)
	H.Add("Newsgroups", joinGroups(groups))
	H.Add("Subject", "test "+id)
	a := &store.Article{
		MessageID:  minimail.FullMsgID(id),
		Headers:    H,
		Body:       []byte("body of " + id + "\n"),
		Newsgroups: groups,
		PostedAt:   baseTime,
		Poster:     "tester",
	}
	d, err := a.ComputeDigest()
	if err != nil {
		panic(err)
	}
	a.Digest = d
	return a
}

func joinGroups(gs []string) (s string) {
	for i, g := range gs {
		if i != 0 {
			s += ","
		}
		s += g
	}
	return
}

func row(group string, num int64, id string, posted time.Time) store.OverviewRow {
	return store.OverviewRow{
		Group:     group,
		Number:    num,
		MessageID: minimail.FullMsgID(id),
		Snapshot: store.Snapshot{
			Subject: "test " + id,
			From:    "tester <t@example.org>",
			Date:    posted,
			Bytes:   100,
			Lines:   1,
		},
		PostedAt: posted,
	}
}

// Run checks b against store.Tx contract.
func Run(t *testing.T, open Opener) {
	t.Run("Groups", func(t *testing.T) { testGroups(t, open(t)) })
	t.Run("Numbering", func(t *testing.T) { testNumbering(t, open(t)) })
	t.Run("Overview", func(t *testing.T) { testOverview(t, open(t)) })
	t.Run("Articles", func(t *testing.T) { testArticles(t, open(t)) })
	t.Run("History", func(t *testing.T) { testHistory(t, open(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("Cancelled", func(t *testing.T) { testCancelled(t, open(t)) })
}

func testGroups(t *testing.T, b store.Backend) {
	update(t, b, func(tx store.Tx) error {
		for _, n := range []string{"misc.test", "a.b", "c.d"} {
			if err := tx.CreateGroup(store.Group{Name: n, Created: baseTime}); err != nil {
				return err
			}
		}
		return nil
	})

	err := b.Update(context.Background(), func(tx store.Tx) error {
		return tx.CreateGroup(store.Group{Name: "a.b", Created: baseTime})
	})
	if !errors.Is(err, store.ErrGroupExists) {
		t.Errorf("duplicate create: expected ErrGroupExists, got %v", err)
	}
	err = b.Update(context.Background(), func(tx store.Tx) error {
		return tx.CreateGroup(store.Group{Name: "bad,name"})
	})
	if !errors.Is(err, store.ErrInvalidGroupName) {
		t.Errorf("bad name: expected ErrInvalidGroupName, got %v", err)
	}

	view(t, b, func(tx store.Tx) error {
		g, err := tx.GetGroup("a.b")
		if err != nil {
			return err
		}
		if g.Low != 1 || g.High != 0 || g.Count() != 0 || !g.Created.Equal(baseTime) {
			t.Errorf("fresh group: unexpected %s", spew.Sdump(g))
		}
		if _, err = tx.GetGroup("no.such"); !errors.Is(err, store.ErrGroupNotFound) {
			t.Errorf("missing group: expected ErrGroupNotFound, got %v", err)
		}
		var names []string
		err = tx.ListGroups(func(g store.Group) error {
			names = append(names, g.Name)
			return nil
		})
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(names, []string{"a.b", "c.d", "misc.test"}) {
			t.Errorf("unexpected group list %q", names)
		}
		return nil
	})

	update(t, b, func(tx store.Tx) error {
		return tx.SetGroupPosting("c.d", store.PostingModerated)
	})
	view(t, b, func(tx store.Tx) error {
		g, err := tx.GetGroup("c.d")
		if err == nil && g.Posting != store.PostingModerated {
			t.Errorf("posting status not saved: %v", g.Posting)
		}
		return err
	})
	err = b.Update(context.Background(), func(tx store.Tx) error {
		return tx.SetGroupPosting("no.such", store.PostingAllowed)
	})
	if !errors.Is(err, store.ErrGroupNotFound) {
		t.Errorf("posting on missing group: expected ErrGroupNotFound, got %v", err)
	}
}

func testNumbering(t *testing.T, b store.Backend) {
	update(t, b, func(tx store.Tx) error {
		return tx.CreateGroup(store.Group{Name: "misc.test", Created: baseTime})
	})
	for i := int64(1); i <= 3; i++ {
		update(t, b, func(tx store.Tx) error {
			n, err := tx.NextArticleNumber("misc.test")
			if err == nil && n != i {
				t.Errorf("expected number %d got %d", i, n)
			}
			return err
		})
	}
	update(t, b, func(tx store.Tx) error {
		return tx.SetLowWater("misc.test", 3)
	})
	view(t, b, func(tx store.Tx) error {
		g, err := tx.GetGroup("misc.test")
		if err == nil && (g.Low != 3 || g.High != 3) {
			t.Errorf("unexpected watermarks %d-%d", g.Low, g.High)
		}
		return err
	})
	err := b.Update(context.Background(), func(tx store.Tx) error {
		_, err := tx.NextArticleNumber("no.such")
		return err
	})
	if !errors.Is(err, store.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}

func testOverview(t *testing.T, b store.Backend) {
	a := TestArticle("<1@x>", "a.b", "c.d")
	update(t, b, func(tx store.Tx) error {
		for _, g := range []string{"a.b", "c.d"} {
			if err := tx.CreateGroup(store.Group{Name: g, Created: baseTime}); err != nil {
				return err
			}
		}
		if _, err := tx.InsertArticle(a); err != nil {
			return err
		}
		for i := int64(1); i <= 5; i++ {
			id := "<1@x>"
			if i > 1 {
				id = "<" + string(rune('0'+i)) + "@x>"
				if _, err := tx.InsertArticle(TestArticle(id, "a.b")); err != nil {
					return err
				}
			}
			r := row("a.b", i, id, baseTime.Add(time.Duration(i)*time.Hour))
			if err := tx.InsertOverview(r); err != nil {
				return err
			}
		}
		return tx.InsertOverview(row("c.d", 7, "<1@x>", baseTime))
	})

	view(t, b, func(tx store.Tx) error {
		var got []int64
		err := tx.ScanOverview("a.b", 2, 4, 0, func(r store.OverviewRow) error {
			got = append(got, r.Number)
			return nil
		})
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(got, []int64{2, 3, 4}) {
			t.Errorf("range scan: got %v", got)
		}

		// any non-positive limit means unlimited
		got = got[:0]
		err = tx.ScanOverview("a.b", 1, 100, -1, func(r store.OverviewRow) error {
			got = append(got, r.Number)
			return nil
		})
		if err != nil {
			return err
		}
		if len(got) != 5 {
			t.Errorf("unlimited scan: got %v", got)
		}

		got = got[:0]
		var first store.OverviewRow
		err = tx.ScanOverview("a.b", 1, 100, 2, func(r store.OverviewRow) error {
			if len(got) == 0 {
				first = r
			}
			got = append(got, r.Number)
			return nil
		})
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(got, []int64{1, 2}) {
			t.Errorf("limited scan: got %v", got)
		}
		exp := row("a.b", 1, "<1@x>", baseTime.Add(time.Hour))
		if first.MessageID != exp.MessageID || first.Subject != exp.Subject ||
			first.From != exp.From || !first.Date.Equal(exp.Date) ||
			!first.PostedAt.Equal(exp.PostedAt) || first.Bytes != exp.Bytes {

			t.Errorf("row mismatch:\n%s\nvs\n%s", spew.Sdump(first), spew.Sdump(exp))
		}

		got = got[:0]
		err = tx.ScanExpired("a.b", 4, baseTime.Add(3*time.Hour+time.Minute), 0,
			func(r store.OverviewRow) error {
				got = append(got, r.Number)
				return nil
			})
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(got, []int64{1, 2, 3}) {
			t.Errorf("expired scan: got %v", got)
		}

		refs, err := tx.ArticleRefs("<1@x>")
		if err != nil {
			return err
		}
		expRefs := []store.ArticleRef{{Group: "a.b", Number: 1}, {Group: "c.d", Number: 7}}
		if !reflect.DeepEqual(refs, expRefs) {
			t.Errorf("refs: got %v", refs)
		}
		return nil
	})

	// deleting while scanning must be allowed
	update(t, b, func(tx store.Tx) error {
		return tx.ScanExpired("a.b", 2, baseTime.Add(100*time.Hour), 0,
			func(r store.OverviewRow) error {
				return tx.DeleteOverview(r.Group, r.Number)
			})
	})
	view(t, b, func(tx store.Tx) error {
		low, ok, err := tx.OverviewLowest("a.b")
		if err == nil && (!ok || low != 3) {
			t.Errorf("lowest: got %d %v", low, ok)
		}
		refs, err := tx.ArticleRefs("<1@x>")
		if err == nil && !reflect.DeepEqual(refs, []store.ArticleRef{{Group: "c.d", Number: 7}}) {
			t.Errorf("refs after delete: got %v", refs)
		}
		return err
	})
	update(t, b, func(tx store.Tx) error {
		if err := tx.DeleteOverview("c.d", 7); err != nil {
			return err
		}
		_, ok, err := tx.OverviewLowest("c.d")
		if err == nil && ok {
			t.Error("lowest of empty group reported present")
		}
		return err
	})
}

func testArticles(t *testing.T, b store.Backend) {
	a := TestArticle("<art@x>", "a.b")
	a.Headers.Add("x-custom", "v")
	a.Digest, _ = a.ComputeDigest()

	update(t, b, func(tx store.Tx) error {
		if err := tx.CreateGroup(store.Group{Name: "a.b", Created: baseTime}); err != nil {
			return err
		}
		ok, err := tx.InsertArticle(a)
		if err == nil && !ok {
			t.Error("first insert reported duplicate")
		}
		return err
	})
	update(t, b, func(tx store.Tx) error {
		ok, err := tx.InsertArticle(a)
		if err == nil && ok {
			t.Error("second insert not reported as duplicate")
		}
		return err
	})

	view(t, b, func(tx store.Tx) error {
		got, err := tx.GetArticle("<art@x>")
		if err != nil {
			return err
		}
		if got.MessageID != a.MessageID ||
			!reflect.DeepEqual(got.Headers, a.Headers) ||
			string(got.Body) != string(a.Body) ||
			!reflect.DeepEqual(got.Newsgroups, a.Newsgroups) ||
			!got.PostedAt.Equal(a.PostedAt) ||
			got.Poster != a.Poster ||
			got.Digest != a.Digest {

			t.Errorf("article mismatch:\n%s\nvs\n%s", spew.Sdump(got), spew.Sdump(a))
		}
		if d, _ := got.ComputeDigest(); d != got.Digest {
			t.Error("digest of stored article doesn't verify")
		}
		if _, err = tx.GetArticle("<none@x>"); !errors.Is(err, store.ErrArticleNotFound) {
			t.Errorf("expected ErrArticleNotFound, got %v", err)
		}
		return nil
	})

	update(t, b, func(tx store.Tx) error {
		if err := tx.InsertOverview(row("a.b", 1, "<art@x>", baseTime)); err != nil {
			return err
		}
		del, err := tx.DeleteArticleIfUnreferenced("<art@x>")
		if err == nil && del {
			t.Error("referenced article deleted")
		}
		return err
	})
	update(t, b, func(tx store.Tx) error {
		if err := tx.DeleteOverview("a.b", 1); err != nil {
			return err
		}
		del, err := tx.DeleteArticleIfUnreferenced("<art@x>")
		if err == nil && !del {
			t.Error("orphan article not deleted")
		}
		return err
	})
	view(t, b, func(tx store.Tx) error {
		if _, err := tx.GetArticle("<art@x>"); !errors.Is(err, store.ErrArticleNotFound) {
			t.Errorf("deleted article still fetchable: %v", err)
		}
		del, err := tx.DeleteArticleIfUnreferenced("<none@x>")
		if del {
			t.Error("missing article reported deleted")
		}
		return err
	})
}

func testHistory(t *testing.T, b store.Backend) {
	update(t, b, func(tx store.Tx) error {
		if err := tx.AddHistory("<old@x>", baseTime); err != nil {
			return err
		}
		if err := tx.AddHistory("<new@x>", baseTime.Add(48*time.Hour)); err != nil {
			return err
		}
		ok, err := tx.InsertArticle(TestArticle("<old@x>", "a.b"))
		if err == nil && ok {
			t.Error("article in history was stored")
		}
		return err
	})
	update(t, b, func(tx store.Tx) error {
		n, err := tx.PruneHistory(baseTime.Add(time.Hour))
		if err == nil && n != 1 {
			t.Errorf("pruned %d entries, expected 1", n)
		}
		return err
	})
	update(t, b, func(tx store.Tx) error {
		ok, err := tx.InsertArticle(TestArticle("<old@x>", "a.b"))
		if err == nil && !ok {
			t.Error("pruned history entry still blocks insert")
		}
		ok, err = tx.InsertArticle(TestArticle("<new@x>", "a.b"))
		if err == nil && ok {
			t.Error("history entry didn't block insert")
		}
		return err
	})
}

var errInjected = errors.New("injected failure")

func testRollback(t *testing.T, b store.Backend) {
	update(t, b, func(tx store.Tx) error {
		return tx.CreateGroup(store.Group{Name: "a.b", Created: baseTime})
	})
	err := b.Update(context.Background(), func(tx store.Tx) error {
		if _, err := tx.InsertArticle(TestArticle("<rb@x>", "a.b")); err != nil {
			return err
		}
		n, err := tx.NextArticleNumber("a.b")
		if err != nil {
			return err
		}
		if err = tx.InsertOverview(row("a.b", n, "<rb@x>", baseTime)); err != nil {
			return err
		}
		return errInjected
	})
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	view(t, b, func(tx store.Tx) error {
		if _, err := tx.GetArticle("<rb@x>"); !errors.Is(err, store.ErrArticleNotFound) {
			t.Errorf("rolled back article visible: %v", err)
		}
		g, err := tx.GetGroup("a.b")
		if err == nil && g.High != 0 {
			t.Errorf("rolled back number allocation visible: high %d", g.High)
		}
		return err
	})
}

func testCancelled(t *testing.T, b store.Backend) {
	update(t, b, func(tx store.Tx) error {
		return tx.CreateGroup(store.Group{Name: "a.b", Created: baseTime})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Update(ctx, func(tx store.Tx) error {
		_, err := tx.NextArticleNumber("a.b")
		return err
	})
	if !store.IsRetryable(err) {
		t.Errorf("cancelled update: expected retryable error, got %v", err)
	}

	// cancellation after work was done but before commit
	ctx, cancel = context.WithCancel(context.Background())
	err = b.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.NextArticleNumber("a.b"); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !store.IsRetryable(err) {
		t.Errorf("late cancel: expected retryable error, got %v", err)
	}

	view(t, b, func(tx store.Tx) error {
		g, err := tx.GetGroup("a.b")
		if err == nil && g.High != 0 {
			t.Errorf("cancelled work committed: high %d", g.High)
		}
		return err
	})
}
