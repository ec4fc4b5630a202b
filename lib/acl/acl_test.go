package acl

import (
	"errors"
	"sync"
	"testing"

	"newsbase/lib/store"
)

var (
	yes = Bool(true)
	no  = Bool(false)
)

func testPolicy() *Policy {
	return MustCompile(PolicyConfig{
		DefaultRead: true,
		DefaultPost: false,
		Identities: []IdentityRule{
			{Identity: "mallory", Group: "rec.**", Perm: Perm{Post: no}},
			{Identity: "alice", Group: "rec.arts.*", Perm: Perm{Read: yes, Post: yes}},
			{Identity: "eve", Perm: Perm{Read: no}},
			{Identity: "", Group: "local.**", Perm: Perm{Read: no}},
		},
		Groups: []GroupRule{
			{Group: "rec.**", Perm: Perm{Post: yes}},
			{Group: "secret", Perm: Perm{Read: no}},
		},
		Admins: []string{"root"},
	})
}

func TestPolicyOrder(t *testing.T) {
	p := testPolicy()
	open := func(n string) GroupInfo { return GroupInfo{Name: n} }
	tests := []struct {
		id   Identity
		op   Op
		g    GroupInfo
		want bool
	}{
		// identity rule beats group rule
		{"mallory", OpPost, open("rec.arts.turtles"), false},
		{"mallory", OpRead, open("rec.arts.turtles"), true},
		{"alice", OpPost, open("rec.arts.turtles"), true},
		// group rule applies to others
		{"bob", OpPost, open("rec.arts.turtles"), true},
		// falls through to rec.** group override
		{"alice", OpPost, open("rec.arts.turtles.sea"), true},
		{"alice", OpPost, open("comp.lang.go"), false},
		// identity rule without group pattern matches everything
		{"eve", OpRead, open("comp.lang.go"), false},
		{"eve", OpPost, GroupInfo{Name: "comp.lang.go", Posting: store.PostingAllowed}, true},
		// group posting status beats global default
		{"bob", OpPost, GroupInfo{Name: "misc.test", Posting: store.PostingAllowed}, true},
		{"bob", OpPost, GroupInfo{Name: "misc.test", Posting: store.PostingDenied}, false},
		{"bob", OpPost, GroupInfo{Name: "misc.test", Posting: store.PostingModerated}, false},
		// but loses to group override
		{"bob", OpPost, GroupInfo{Name: "rec.x", Posting: store.PostingDenied}, true},
		// global defaults
		{"bob", OpPost, open("misc.test"), false},
		{"bob", OpRead, open("misc.test"), true},
		{"bob", OpRead, open("secret"), false},
		// anonymous
		{Anonymous, OpRead, open("local.news"), false},
		{"bob", OpRead, open("local.news"), true},
	}
	for i, tc := range tests {
		if got := p.Allowed(tc.id, tc.op, tc.g); got != tc.want {
			t.Errorf("%d: %s %s %s: expected %v got %v",
				i, tc.id, tc.op, tc.g.Name, tc.want, got)
		}
	}
}

func TestCheckAndAdmin(t *testing.T) {
	p := testPolicy()
	err := p.Check("mallory", OpPost, GroupInfo{Name: "rec.arts.turtles"})
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected denial, got %v", err)
	}
	if err = p.Check("alice", OpPost, GroupInfo{Name: "rec.arts.turtles"}); err != nil {
		t.Errorf("unexpected %v", err)
	}
	if !p.IsAdmin("root") || p.IsAdmin("alice") || p.IsAdmin(Anonymous) {
		t.Error("admin check misbehaves")
	}
}

func TestCompileErrors(t *testing.T) {
	bad := []PolicyConfig{
		{Identities: []IdentityRule{{Identity: "[a"}}},
		{Groups: []GroupRule{{Group: "misc.[x"}}},
	}
	for i, c := range bad {
		if _, err := Compile(c); err == nil {
			t.Errorf("%d: expected error", i)
		}
	}
}

func TestEngineSwap(t *testing.T) {
	e := NewEngine(nil)
	g := GroupInfo{Name: "misc.test"}
	if !e.CanRead("x", g) || e.CanPost("x", g) {
		t.Fatal("default policy mismatch")
	}

	open := MustCompile(PolicyConfig{DefaultRead: true, DefaultPost: true})
	closed := MustCompile(PolicyConfig{})
	// default policy answers read and post differently
	e.Load(open)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				e.Load(open)
			} else {
				e.Load(closed)
			}
		}
	}()
	for i := 0; i < 1000; i++ {
		// single snapshot gives consistent answers for both ops
		p := e.Snapshot()
		r, w := p.CanRead("x", g), p.CanPost("x", g)
		if r != w {
			t.Fatalf("inconsistent snapshot: read %v post %v", r, w)
		}
	}
	close(stop)
	wg.Wait()
}

func TestCancelOnlyAdmins(t *testing.T) {
	p := testPolicy()
	g := GroupInfo{Name: "rec.arts.turtles"}
	if !p.Allowed("root", OpCancel, g) || p.Allowed("alice", OpCancel, g) {
		t.Error("cancel permission should follow admin list")
	}
}
