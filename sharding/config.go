package sharding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/syssam/veloq/dialect"
	"github.com/syssam/veloq/dialect/mysql"
	"github.com/syssam/veloq/dialect/postgres"
)

// Config is a shard map file.
//
//	datasources:
//	  ds0: {dialect: mysql, dsn: "app:pw@tcp(db0:3306)/app?parseTime=true"}
//	  ds1: {dialect: mysql, dsn: "app:pw@tcp(db1:3306)/app?parseTime=true"}
//	tables:
//	  orders:
//	    key: user_id
//	    missing_key: reject
//	    hash: {count: 4, pattern: "orders_{n}", datasources: [ds0, ds1]}
type Config struct {
	DataSources map[string]DataSourceConfig `yaml:"datasources"`
	Tables      map[string]TableConfig      `yaml:"tables"`
}

// DataSourceConfig is a database of the shard map.
type DataSourceConfig struct {
	Dialect string `yaml:"dialect"`
	DSN     string `yaml:"dsn"`
}

// TableConfig shards one logical table. Exactly one of Hash, Range and
// Static is set.
type TableConfig struct {
	Key        string         `yaml:"key"`
	Schema     string         `yaml:"schema,omitempty"`
	MissingKey string         `yaml:"missing_key,omitempty"`
	Hash       *HashConfig    `yaml:"hash,omitempty"`
	Range      []RangeConfig  `yaml:"range,omitempty"`
	Static     []StaticConfig `yaml:"static,omitempty"`
}

// HashConfig configures Hash.
type HashConfig struct {
	Count            int        `yaml:"count"`
	Pattern          string     `yaml:"pattern"`
	Base             int        `yaml:"base,omitempty"`
	DataSources      StringList `yaml:"datasources"`
	NotShardingTable bool       `yaml:"not_sharding_table,omitempty"`
}

// RangeConfig is one bound of Range.
type RangeConfig struct {
	From       int64  `yaml:"from"`
	To         int64  `yaml:"to"`
	Table      string `yaml:"table"`
	DataSource string `yaml:"datasource,omitempty"`
}

// StaticConfig maps keys of Static to a table. A Default entry receives
// unmapped keys.
type StaticConfig struct {
	Keys       StringList `yaml:"keys,omitempty"`
	Table      string     `yaml:"table"`
	DataSource string     `yaml:"datasource,omitempty"`
	Default    bool       `yaml:"default,omitempty"`
}

// StringList is a YAML string or list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler for StringList.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", node.Kind)
	}
}

// LoadConfig reads and validates a shard map file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shard map: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a shard map.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse shard map: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateDSN checks a data source name with the parser of its dialect
// driver. Dialects without a bundled driver only require a non-empty name.
func ValidateDSN(name, dsn string) error {
	switch name {
	case dialect.MySQL:
		return mysql.ValidateDSN(dsn)
	case dialect.Postgres:
		return postgres.ValidateDSN(dsn)
	}
	if !slices.Contains(dialect.Names, name) {
		return fmt.Errorf("unknown dialect %q", name)
	}
	if dsn == "" {
		return errors.New("empty data source name")
	}
	return nil
}

// Validate reports every problem of the shard map.
func (c *Config) Validate() error {
	var errs []error
	for _, name := range sortedKeys(c.DataSources) {
		if err := ValidateDSN(c.DataSources[name].Dialect, c.DataSources[name].DSN); err != nil {
			errs = append(errs, fmt.Errorf("datasource %q: %w", name, err))
		}
	}
	checkSource := func(table, ds string) {
		if ds == "" {
			return
		}
		if _, ok := c.DataSources[ds]; !ok {
			errs = append(errs, fmt.Errorf("table %q: unknown datasource %q", table, ds))
		}
	}
	for _, name := range sortedKeys(c.Tables) {
		t := c.Tables[name]
		if t.Key == "" {
			errs = append(errs, fmt.Errorf("table %q: no key column", name))
		}
		if _, err := ParseMissingKeyPolicy(t.MissingKey); err != nil {
			errs = append(errs, fmt.Errorf("table %q: %w", name, err))
		}
		set := 0
		if t.Hash != nil {
			set++
			for _, ds := range t.Hash.DataSources {
				checkSource(name, ds)
			}
		}
		if len(t.Range) > 0 {
			set++
			for _, r := range t.Range {
				checkSource(name, r.DataSource)
			}
		}
		if len(t.Static) > 0 {
			set++
			for _, s := range t.Static {
				checkSource(name, s.DataSource)
			}
		}
		if set != 1 {
			errs = append(errs, fmt.Errorf("table %q: exactly one of hash, range and static must be set", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid shard map: %w", errors.Join(errs...))
	}
	return nil
}

// Rules builds the routing rules of the shard map.
func (c *Config) Rules() ([]*Rule, error) {
	rules := make([]*Rule, 0, len(c.Tables))
	for _, name := range sortedKeys(c.Tables) {
		t := c.Tables[name]
		policy, err := ParseMissingKeyPolicy(t.MissingKey)
		if err != nil {
			return nil, err
		}
		alg, err := t.algorithm(name)
		if err != nil {
			return nil, err
		}
		rules = append(rules, &Rule{Table: name, Column: t.Key, Algorithm: alg, MissingKey: policy})
	}
	return rules, nil
}

func (t TableConfig) algorithm(name string) (Algorithm, error) {
	switch {
	case t.Hash != nil:
		return NewHash(Hash{
			Logical:          name,
			Schema:           t.Schema,
			Pattern:          t.Hash.Pattern,
			Count:            t.Hash.Count,
			Base:             t.Hash.Base,
			DataSources:      t.Hash.DataSources,
			NotShardingTable: t.Hash.NotShardingTable,
		})
	case len(t.Range) > 0:
		bounds := make([]RangeBound, len(t.Range))
		for i, r := range t.Range {
			bounds[i] = RangeBound{From: r.From, To: r.To, Table: &RouteTable{Name: r.Table, Schema: t.Schema, DataSource: r.DataSource}}
		}
		return NewRange(bounds...)
	case len(t.Static) > 0:
		s := NewStatic()
		for _, e := range t.Static {
			rt := &RouteTable{Name: e.Table, Schema: t.Schema, DataSource: e.DataSource}
			if e.Default {
				s.Default = rt
			}
			keys := make([]any, len(e.Keys))
			for i, k := range e.Keys {
				keys[i] = k
			}
			if len(keys) > 0 {
				s.Map(rt, keys...)
			}
		}
		return s, nil
	}
	return nil, fmt.Errorf("sharding: table %q has no algorithm", name)
}

// TableNames returns the logical tables of the shard map in order.
func (c *Config) TableNames() []string { return sortedKeys(c.Tables) }

// Router builds a router from the shard map.
func (c *Config) Router(opts ...RouterOption) (*Router, error) {
	rules, err := c.Rules()
	if err != nil {
		return nil, err
	}
	return NewRouter(rules, opts...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Watch reloads the rules of r whenever the shard map file at path
// changes, until ctx is done. A map that fails to load or validate is
// logged and the previous rules stay in place.
func Watch(ctx context.Context, path string, r *Router, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch shard map: %w", err)
	}
	defer w.Close()
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch shard map: %w", err)
	}
	// Editors replace files by renaming, so watch the directory.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch shard map: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "shard map watcher error", "path", abs, "error", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := reload(abs, r); err != nil {
				logger.WarnContext(ctx, "shard map reload failed", "path", abs, "error", err)
				continue
			}
			logger.InfoContext(ctx, "shard map reloaded", "path", abs)
		}
	}
}

func reload(path string, r *Router) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read shard map: %w", err)
	}
	// A truncated file is seen between the truncation and the write.
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("shard map is empty")
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return err
	}
	rules, err := cfg.Rules()
	if err != nil {
		return err
	}
	return r.Replace(rules)
}
