// Package acl evaluates read and post permissions against
// immutable policy snapshots.
package acl

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gobwas/glob"
	"golang.org/x/xerrors"

	"newsbase/lib/store"
)

var ErrAccessDenied = errors.New("access denied")

// Identity is already authenticated principal. Empty is anonymous.
type Identity string

const Anonymous Identity = ""

func (id Identity) String() string {
	if id == Anonymous {
		return "<anonymous>"
	}
	return string(id)
}

type Op int

const (
	OpRead Op = iota
	OpPost
	OpCancel
)

func (o Op) String() string {
	switch o {
	case OpPost:
		return "post"
	case OpCancel:
		return "cancel"
	}
	return "read"
}

// GroupInfo is what evaluation needs to know about group.
type GroupInfo struct {
	Name    string
	Posting store.PostingStatus
}

// Perm is optional allow/deny pair. nil fields don't decide.
type Perm struct {
	Read *bool
	Post *bool
}

func (p Perm) get(op Op) *bool {
	switch op {
	case OpRead:
		return p.Read
	case OpPost:
		return p.Post
	}
	return nil
}

// IdentityRule applies to identities matching Identity pattern
// in groups matching Group pattern.
type IdentityRule struct {
	Identity string
	Group    string
	Perm
}

type GroupRule struct {
	Group string
	Perm
}

type PolicyConfig struct {
	DefaultRead bool
	DefaultPost bool
	Groups      []GroupRule
	Identities  []IdentityRule
	Admins      []string
}

var DefaultPolicyConfig = PolicyConfig{
	DefaultRead: true,
	DefaultPost: false,
}

type compiledIdentityRule struct {
	id    glob.Glob
	group glob.Glob
	perm  Perm
}

type compiledGroupRule struct {
	group glob.Glob
	perm  Perm
}

// Policy is compiled, immutable policy snapshot.
type Policy struct {
	defRead bool
	defPost bool
	ids     []compiledIdentityRule
	groups  []compiledGroupRule
	admins  map[Identity]struct{}
}

// group patterns treat '.' as separator: "rec.*" is one level, "rec.**" any depth
func compileGroupPattern(p string) (glob.Glob, error) {
	if p == "" {
		p = "**"
	}
	g, err := glob.Compile(p, '.')
	if err != nil {
		return nil, xerrors.Errorf("bad group pattern %q: %w", p, err)
	}
	return g, nil
}

func Compile(cfg PolicyConfig) (*Policy, error) {
	p := &Policy{
		defRead: cfg.DefaultRead,
		defPost: cfg.DefaultPost,
		admins:  make(map[Identity]struct{}, len(cfg.Admins)),
	}
	for _, r := range cfg.Identities {
		idg, err := glob.Compile(r.Identity)
		if err != nil {
			return nil, xerrors.Errorf("bad identity pattern %q: %w", r.Identity, err)
		}
		gg, err := compileGroupPattern(r.Group)
		if err != nil {
			return nil, err
		}
		p.ids = append(p.ids, compiledIdentityRule{id: idg, group: gg, perm: r.Perm})
	}
	for _, r := range cfg.Groups {
		gg, err := compileGroupPattern(r.Group)
		if err != nil {
			return nil, err
		}
		p.groups = append(p.groups, compiledGroupRule{group: gg, perm: r.Perm})
	}
	for _, a := range cfg.Admins {
		p.admins[Identity(a)] = struct{}{}
	}
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(cfg PolicyConfig) *Policy {
	p, err := Compile(cfg)
	if err != nil {
		panic(err)
	}
	return p
}

// Allowed evaluates op: first identity rule deciding op,
// then first group rule deciding op, then group posting status
// (posts only), then global default.
func (p *Policy) Allowed(id Identity, op Op, g GroupInfo) bool {
	if op == OpCancel {
		// poster check is up to caller; policy only knows admins
		return p.IsAdmin(id)
	}
	for i := range p.ids {
		r := &p.ids[i]
		if v := r.perm.get(op); v != nil &&
			r.id.Match(string(id)) && r.group.Match(g.Name) {

			return *v
		}
	}
	for i := range p.groups {
		r := &p.groups[i]
		if v := r.perm.get(op); v != nil && r.group.Match(g.Name) {
			return *v
		}
	}
	if op == OpPost {
		switch g.Posting {
		case store.PostingAllowed:
			return true
		case store.PostingDenied, store.PostingModerated:
			// moderation queue isn't implemented, treat as closed
			return false
		}
		return p.defPost
	}
	return p.defRead
}

func (p *Policy) CanRead(id Identity, g GroupInfo) bool {
	return p.Allowed(id, OpRead, g)
}

func (p *Policy) CanPost(id Identity, g GroupInfo) bool {
	return p.Allowed(id, OpPost, g)
}

func (p *Policy) IsAdmin(id Identity) bool {
	if id == Anonymous {
		return false
	}
	_, ok := p.admins[id]
	return ok
}

// Check returns ErrAccessDenied naming identity, op and group.
func (p *Policy) Check(id Identity, op Op, g GroupInfo) error {
	if p.Allowed(id, op, g) {
		return nil
	}
	return Denied(id, op, g.Name)
}

// Denied builds ErrAccessDenied naming who tried what on which target.
func Denied(id Identity, op Op, target string) error {
	return fmt.Errorf("%s may not %s %q: %w", id, op, target, ErrAccessDenied)
}

// Engine hands out consistent snapshots; policy is swapped atomically.
type Engine struct {
	p atomic.Pointer[Policy]
}

func NewEngine(p *Policy) *Engine {
	e := &Engine{}
	e.Load(p)
	return e
}

// Load replaces current policy. nil restores default one.
func (e *Engine) Load(p *Policy) {
	if p == nil {
		p = MustCompile(DefaultPolicyConfig)
	}
	e.p.Store(p)
}

// Snapshot returns policy to evaluate single operation against.
func (e *Engine) Snapshot() *Policy {
	return e.p.Load()
}

func (e *Engine) CanRead(id Identity, g GroupInfo) bool {
	return e.Snapshot().CanRead(id, g)
}

func (e *Engine) CanPost(id Identity, g GroupInfo) bool {
	return e.Snapshot().CanPost(id, g)
}

// Bool is helper for building Perm literals.
func Bool(v bool) *bool {
	return &v
}
