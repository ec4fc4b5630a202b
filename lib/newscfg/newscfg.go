// Package newscfg loads server configuration from TOML.
package newscfg

import (
	"errors"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"

	"newsbase/lib/acl"
	"newsbase/lib/expirer"
	"newsbase/lib/mailib"
	"newsbase/lib/minimail"
	"newsbase/lib/newsvc"
	"newsbase/lib/store"
	"newsbase/lib/store/boltstore"
	"newsbase/lib/store/sqlstore"
	"newsbase/lib/utils/logx"
)

var ErrConfig = errors.New("bad configuration")

const DriverBolt = "bolt"

type DatabaseConfig struct {
	Driver          string  `toml:"driver"`
	ConnStr         string  `toml:"connect_string"` // file path for sqlite and bolt
	ConnMaxLifetime float64 `toml:"connection_max_lifetime"`
	MaxIdleConns    int32   `toml:"max_idle_connections"`
	MaxOpenConns    int32   `toml:"max_open_connections"`
	LogSQL          bool    `toml:"log_sql"`
}

type ServiceConfig struct {
	NodeName       string  `toml:"node_name"`
	OpTimeout      float64 `toml:"op_timeout"` // seconds
	HeadLimit      int     `toml:"head_limit"`
	MaxBodySize    int     `toml:"max_body_size"`
	MaxGroups      int     `toml:"max_groups"`
	StrictDate     bool    `toml:"strict_date"`
	HideUnreadable bool    `toml:"hide_unreadable"`
	ExpireBatch    int     `toml:"expire_batch"`
	PageSize       int     `toml:"page_size"`
}

type PermConfig struct {
	Read *bool `toml:"read"`
	Post *bool `toml:"post"`
}

type GroupRuleConfig struct {
	Pattern string `toml:"pattern"`
	PermConfig
}

type IdentityRuleConfig struct {
	Identity string `toml:"identity"`
	Group    string `toml:"group"`
	PermConfig
}

type AccessConfig struct {
	DefaultRead bool                 `toml:"default_read"`
	DefaultPost bool                 `toml:"default_post"`
	Admins      []string             `toml:"admins"`
	Groups      []GroupRuleConfig    `toml:"group"`
	Identities  []IdentityRuleConfig `toml:"identity"`
}

type RetentionRuleConfig struct {
	Pattern    string  `toml:"pattern"`
	MaxAgeDays float64 `toml:"max_age_days"`
}

type RetentionConfig struct {
	Cron            string                `toml:"cron"`
	Parallel        int                   `toml:"parallel"`
	HistoryKeepDays float64               `toml:"history_keep_days"`
	Groups          []RetentionRuleConfig `toml:"group"`
}

type LogConfig struct {
	Level string `toml:"level"`
	Color string `toml:"color"` // auto, on, off
}

type MetricsConfig struct {
	Listen string `toml:"listen"` // empty disables
}

type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Service   ServiceConfig   `toml:"service"`
	Access    AccessConfig    `toml:"access"`
	Retention RetentionConfig `toml:"retention"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

var DefaultConfig = Config{
	Database: DatabaseConfig{
		Driver:  sqlstore.DriverSQLite,
		ConnStr: "newsbase.db",
	},
	Service: ServiceConfig{
		NodeName:    mailib.DefaultPrepareConfig.NodeName,
		OpTimeout:   newsvc.DefaultConfig.OpTimeout.Seconds(),
		HeadLimit:   newsvc.DefaultConfig.HeadLimit,
		MaxBodySize: mailib.DefaultPrepareConfig.MaxBodySize,
		MaxGroups:   mailib.DefaultPrepareConfig.MaxGroups,
		ExpireBatch: newsvc.DefaultConfig.ExpireBatch,
		PageSize:    newsvc.DefaultConfig.PageSize,
	},
	Access: AccessConfig{
		DefaultRead: acl.DefaultPolicyConfig.DefaultRead,
		DefaultPost: acl.DefaultPolicyConfig.DefaultPost,
	},
	Retention: RetentionConfig{
		Cron:            expirer.DefaultSchedule.Cron,
		Parallel:        4,
		HistoryKeepDays: expirer.DefaultSchedule.HistoryKeep.Hours() / 24,
	},
	Log: LogConfig{
		Level: "info",
		Color: "auto",
	},
}

func bad(f string, args ...interface{}) error {
	return xerrors.Errorf(f+": %w", append(args, ErrConfig)...)
}

// Parse decodes s over DefaultConfig and validates result.
func Parse(s string) (*Config, error) {
	cfg := DefaultConfig
	md, err := toml.Decode(s, &cfg)
	if err != nil {
		return nil, bad("%v", err)
	}
	if und := md.Undecoded(); len(und) != 0 {
		return nil, bad("unknown key %q", und[0].String())
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, bad("%v", err)
	}
	cfg, err := Parse(string(b))
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case sqlstore.DriverPostgres, sqlstore.DriverSQLite, DriverBolt:
	default:
		return bad("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.ConnStr == "" && c.Database.Driver != sqlstore.DriverPostgres {
		return bad("database.connect_string required for %s", c.Database.Driver)
	}
	if c.Database.ConnMaxLifetime < 0 || c.Database.MaxIdleConns < 0 || c.Database.MaxOpenConns < 0 {
		return bad("negative database pool settings")
	}

	s := &c.Service
	if !minimail.ValidNodeName(s.NodeName) {
		return bad("invalid service.node_name %q", s.NodeName)
	}
	if s.OpTimeout < 0 || s.HeadLimit < 0 || s.MaxBodySize < 0 ||
		s.MaxGroups < 0 || s.ExpireBatch < 0 || s.PageSize < 0 {

		return bad("negative service limits")
	}

	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.Retention.Parallel < 0 {
		return bad("negative retention.parallel")
	}
	if err := c.Schedule().Validate(); err != nil {
		return bad("%v", err)
	}

	if _, err := logx.ParseLevel(c.Log.Level); err != nil {
		return bad("%v", err)
	}
	switch c.Log.Color {
	case "", "auto", "on", "off":
	default:
		return bad("log.color %q", c.Log.Color)
	}
	return nil
}

// Policy compiles access section.
func (c *Config) Policy() (*acl.Policy, error) {
	a := &c.Access
	pc := acl.PolicyConfig{
		DefaultRead: a.DefaultRead,
		DefaultPost: a.DefaultPost,
		Admins:      a.Admins,
	}
	for _, g := range a.Groups {
		pc.Groups = append(pc.Groups, acl.GroupRule{
			Group: g.Pattern,
			Perm:  acl.Perm{Read: g.Read, Post: g.Post},
		})
	}
	for _, r := range a.Identities {
		if r.Identity == "" {
			return nil, bad("access.identity rule without identity")
		}
		pc.Identities = append(pc.Identities, acl.IdentityRule{
			Identity: r.Identity,
			Group:    r.Group,
			Perm:     acl.Perm{Read: r.Read, Post: r.Post},
		})
	}
	p, err := acl.Compile(pc)
	if err != nil {
		return nil, bad("access: %v", err)
	}
	return p, nil
}

func days(d float64) time.Duration {
	return time.Duration(d * float64(24*time.Hour))
}

func (c *Config) Schedule() expirer.Schedule {
	s := expirer.Schedule{
		Cron:        c.Retention.Cron,
		HistoryKeep: days(c.Retention.HistoryKeepDays),
	}
	for _, r := range c.Retention.Groups {
		s.Rules = append(s.Rules, expirer.Rule{Pattern: r.Pattern, MaxAge: days(r.MaxAgeDays)})
	}
	return s
}

// Backend opens configured database, creating schema when needed.
func (c *Config) Backend(lx logx.LoggerX) (store.Backend, error) {
	d := &c.Database
	if d.Driver == DriverBolt {
		bc := boltstore.DefaultConfig
		bc.Path = d.ConnStr
		bc.Logger = lx
		db, err := boltstore.Open(bc)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	sc := sqlstore.DefaultConfig
	sc.Driver = d.Driver
	sc.ConnStr = d.ConnStr
	if d.Driver == sqlstore.DriverSQLite {
		sc.ConnStr = sqlstore.SQLiteDSN(d.ConnStr)
	}
	sc.ConnMaxLifetime = d.ConnMaxLifetime
	sc.MaxIdleConns = d.MaxIdleConns
	sc.MaxOpenConns = d.MaxOpenConns
	sc.LogSQL = d.LogSQL
	sc.Logger = lx
	db, err := sqlstore.OpenAndPrepare(sc)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// ServiceConfig fills newsvc.Config except backend, metrics and logger.
func (c *Config) ServiceConfig() (newsvc.Config, error) {
	p, err := c.Policy()
	if err != nil {
		return newsvc.Config{}, err
	}
	s := &c.Service
	nc := newsvc.DefaultConfig
	nc.Policy = p
	nc.Prepare = mailib.PrepareConfig{
		NodeName:    s.NodeName,
		MaxBodySize: s.MaxBodySize,
		MaxGroups:   s.MaxGroups,
		StrictDate:  s.StrictDate,
	}
	nc.HideUnreadable = s.HideUnreadable
	nc.OpTimeout = time.Duration(s.OpTimeout * float64(time.Second))
	nc.HeadLimit = s.HeadLimit
	nc.ExpireBatch = s.ExpireBatch
	nc.PageSize = s.PageSize
	return nc, nil
}
