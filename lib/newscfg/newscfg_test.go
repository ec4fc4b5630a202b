package newscfg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"newsbase/lib/acl"
	"newsbase/lib/store"
	"newsbase/lib/store/storetest"
)

const sample = `
[database]
driver = "bolt"
connect_string = "/var/lib/newsbase/news.bolt"

[service]
node_name = "news.example.org"
op_timeout = 2.5
hide_unreadable = true
max_groups = 5

[access]
default_read = true
default_post = false
admins = ["root"]

[[access.group]]
pattern = "local.**"
post = true

[[access.group]]
pattern = "staff.*"
read = false

[[access.identity]]
identity = "staff-*"
group = "staff.*"
read = true
post = true

[retention]
cron = "@hourly"
history_keep_days = 7

[[retention.group]]
pattern = "alt.binaries.**"
max_age_days = 0.5

[[retention.group]]
max_age_days = 90

[log]
level = "debug"
color = "off"

[metrics]
listen = "127.0.0.1:9130"
`

func TestParse(t *testing.T) {
	cfg, err := Parse(sample)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Driver != DriverBolt || cfg.Metrics.Listen != "127.0.0.1:9130" {
		t.Errorf("decoded %+v", cfg)
	}
	// untouched keys keep defaults
	if cfg.Service.MaxBodySize != DefaultConfig.Service.MaxBodySize {
		t.Errorf("max_body_size %d", cfg.Service.MaxBodySize)
	}

	p, err := cfg.Policy()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		id    acl.Identity
		group string
		op    acl.Op
		want  bool
	}{
		{"bob", "local.chat", acl.OpPost, true},
		{"bob", "misc.test", acl.OpPost, false},
		{"bob", "staff.room", acl.OpRead, false},
		{"staff-ann", "staff.room", acl.OpRead, true},
		{"staff-ann", "staff.room", acl.OpPost, true},
		{"root", "", acl.OpCancel, true},
	}
	for i, tt := range tests {
		if got := p.Allowed(tt.id, tt.op, acl.GroupInfo{Name: tt.group}); got != tt.want {
			t.Errorf("%d: %s %s %s = %v", i, tt.id, tt.op, tt.group, got)
		}
	}

	s := cfg.Schedule()
	if s.Cron != "@hourly" || s.HistoryKeep != 7*24*time.Hour || len(s.Rules) != 2 ||
		s.Rules[0].MaxAge != 12*time.Hour || s.Rules[1].Pattern != "" {

		t.Errorf("schedule %+v", s)
	}

	nc, err := cfg.ServiceConfig()
	if err != nil {
		t.Fatal(err)
	}
	if nc.OpTimeout != 2500*time.Millisecond || !nc.HideUnreadable ||
		nc.Prepare.NodeName != "news.example.org" || nc.Prepare.MaxGroups != 5 {

		t.Errorf("service config %+v", nc)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		`[database]
driver = "mysql"`,
		`[database]
driver = "sqlite"
connect_string = ""`,
		`[database]
max_open_connections = -1`,
		`[service]
node_name = "bad@node"`,
		`[service]
op_timeout = -1`,
		`[[access.group]]
pattern = "misc.[x"`,
		`[[access.identity]]
group = "misc.*"`,
		`[retention]
cron = "whenever"`,
		`[[retention.group]]
max_age_days = -1`,
		`[log]
level = "loud"`,
		`[log]
color = "rainbow"`,
		`[servce]
node_name = "typo"`,
		`not toml at all = = =`,
	}
	for i, s := range tests {
		if _, err := Parse(s); !errors.Is(err, ErrConfig) {
			t.Errorf("%d: got %v", i, err)
		}
	}
}

func TestDefaultValid(t *testing.T) {
	cfg := DefaultConfig
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAndBackend(t *testing.T) {
	dir := t.TempDir()
	for _, driver := range []string{"sqlite", "bolt"} {
		path := filepath.Join(dir, "newsbase.toml")
		data := "[database]\ndriver = \"" + driver + "\"\n" +
			"connect_string = \"" + filepath.ToSlash(filepath.Join(dir, driver+".db")) + "\"\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("%s: %v", driver, err)
		}
		b, err := cfg.Backend(storetest.Logger(t))
		if err != nil {
			t.Fatalf("%s: %v", driver, err)
		}
		err = b.Update(context.Background(), func(tx store.Tx) error {
			return tx.CreateGroup(store.Group{Name: "misc.test"})
		})
		if err != nil {
			t.Errorf("%s: %v", driver, err)
		}
		b.Close()
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); !errors.Is(err, ErrConfig) {
		t.Errorf("missing file: %v", err)
	}
}
