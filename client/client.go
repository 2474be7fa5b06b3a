package client

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dialect"
	"github.com/syssam/veloq/dialect/dameng"
	"github.com/syssam/veloq/dialect/mysql"
	"github.com/syssam/veloq/dialect/oracle"
	"github.com/syssam/veloq/dialect/postgres"
	"github.com/syssam/veloq/dialect/sql"
	"github.com/syssam/veloq/dialect/sqlite"
	"github.com/syssam/veloq/dialect/sqlserver"
	"github.com/syssam/veloq/expr"
	"github.com/syssam/veloq/query"
	"github.com/syssam/veloq/schema"
	"github.com/syssam/veloq/sharding"
)

// DB runs queries and statements against a database, or against the data
// sources of a shard map. It is safe for concurrent use.
type DB struct {
	drv      dialect.Driver
	tx       dialect.Tx
	dialect  *sql.Dialect
	opts     sql.Options
	schema   *schema.Registry
	logger   *slog.Logger
	router   *sharding.Router
	sources  map[string]dialect.Driver
	fanOut   int
	policy   veloq.Policy
	cache    veloq.Cache
	cacheTTL time.Duration
	filters  *filterSet
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger of statements, routing and cache events.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// WithOptions sets the translation options.
func WithOptions(opts sql.Options) Option {
	return func(db *DB) { db.opts = opts }
}

// WithDialect overrides the dialect derived from the driver name.
func WithDialect(d *sql.Dialect) Option {
	return func(db *DB) { db.dialect = d }
}

// WithSchema resolves entities from reg instead of schema.Default.
func WithSchema(reg *schema.Registry) Option {
	return func(db *DB) { db.schema = reg }
}

// WithRouter routes statements over sharded tables to the data sources
// of the router's tables. Routes without a data source use the DB driver.
func WithRouter(r *sharding.Router, sources map[string]dialect.Driver) Option {
	return func(db *DB) {
		db.router = r
		db.sources = sources
	}
}

// WithFanOutLimit bounds the shards queried at once by a broadcast.
func WithFanOutLimit(n int) Option {
	return func(db *DB) { db.fanOut = n }
}

// WithPolicy evaluates p before every query and mutation.
func WithPolicy(p veloq.Policy) Option {
	return func(db *DB) { db.policy = p }
}

// WithCache caches the rows of single-table queries for ttl. Writes
// through the DB invalidate the entries of their table.
func WithCache(c veloq.Cache, ttl time.Duration) Option {
	return func(db *DB) {
		db.cache = c
		db.cacheTTL = ttl
	}
}

// New returns a DB over drv. The dialect is derived from drv.Dialect
// unless WithDialect is given.
func New(drv dialect.Driver, opts ...Option) (*DB, error) {
	db := &DB{drv: drv, filters: &filterSet{m: make(map[reflect.Type][]expr.Predicate)}}
	for _, opt := range opts {
		opt(db)
	}
	if db.dialect == nil {
		d, err := DialectOf(drv.Dialect())
		if err != nil {
			return nil, err
		}
		db.dialect = d
	}
	if db.logger == nil {
		db.logger = slog.New(slog.DiscardHandler)
	}
	if db.schema == nil {
		db.schema = schema.Default
	}
	return db, nil
}

// Open opens a database with the database/sql driver registered under
// driverName. The driver name selects the dialect.
func Open(driverName, dsn string, opts ...Option) (*DB, error) {
	drv, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db, err := New(drv, opts...)
	if err != nil {
		drv.Close()
		return nil, err
	}
	return db, nil
}

// FromConfig opens every data source of the shard map and routes its
// tables. Statements over other tables run on the data source named def.
func FromConfig(cfg *sharding.Config, def string, opts ...Option) (*DB, error) {
	if _, ok := cfg.DataSources[def]; !ok {
		return nil, fmt.Errorf("client: unknown default datasource %q", def)
	}
	sources := make(map[string]dialect.Driver, len(cfg.DataSources))
	closeAll := func() {
		for _, drv := range sources {
			drv.Close()
		}
	}
	for name, ds := range cfg.DataSources {
		db, err := stdsql.Open(ds.Dialect, ds.DSN)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("client: open datasource %q: %w", name, err)
		}
		sources[name] = sql.OpenDB(ds.Dialect, db)
	}
	db, err := New(sources[def], opts...)
	if err != nil {
		closeAll()
		return nil, err
	}
	r, err := cfg.Router(sharding.WithLogger(db.logger))
	if err != nil {
		closeAll()
		return nil, err
	}
	db.router, db.sources = r, sources
	return db, nil
}

// DialectOf returns the dialect of a driver or dialect name.
func DialectOf(name string) (*sql.Dialect, error) {
	switch sql.DialectName(name) {
	case dialect.SQLServer:
		return sqlserver.Dialect, nil
	case dialect.MySQL:
		return mysql.Dialect, nil
	case dialect.Postgres:
		return postgres.Dialect, nil
	case dialect.SQLite:
		return sqlite.Dialect, nil
	case dialect.Oracle:
		return oracle.Dialect, nil
	case dialect.Dameng:
		return dameng.Dialect, nil
	}
	return nil, fmt.Errorf("client: unsupported dialect %q", name)
}

// Close closes the driver and the data sources of the router.
func (db *DB) Close() error {
	var errs []error
	if err := db.drv.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, drv := range db.sources {
		if drv == db.drv {
			continue
		}
		if err := drv.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return veloq.NewAggregateError(errs...)
}

// Driver returns the driver of the default data source.
func (db *DB) Driver() dialect.Driver { return db.drv }

// Dialect returns the dialect of the default data source.
func (db *DB) Dialect() *sql.Dialect { return db.dialect }

// Router returns the shard router, or nil.
func (db *DB) Router() *sharding.Router { return db.router }

// Tx runs fn with a DB bound to a transaction of the default data source.
// The transaction commits when fn returns nil and rolls back otherwise.
// Routed statements run outside of it on their own data sources.
func (db *DB) Tx(ctx context.Context, fn func(tx *DB) error) error {
	if db.tx != nil {
		return veloq.ErrTxStarted
	}
	tx, err := db.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("client: begin transaction: %w", err)
	}
	c := *db
	c.tx = tx
	defer func() {
		if v := recover(); v != nil {
			tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(&c); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return &veloq.RollbackError{Err: err, Rollback: rerr}
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("client: commit transaction: %w", err)
	}
	return nil
}

type filterSet struct {
	mu sync.RWMutex
	m  map[reflect.Type][]expr.Predicate
}

// HasQueryFilter adds a filter to every query and bulk statement of the
// entity type t run through db. IgnoreAllFilters disables it.
func (db *DB) HasQueryFilter(t reflect.Type, p expr.Predicate) {
	t = expr.Deref(t)
	db.filters.mu.Lock()
	defer db.filters.mu.Unlock()
	db.filters.m[t] = append(db.filters.m[t], p)
}

// HasQueryFilter adds a filter to every query and bulk statement of T run
// through db.
func HasQueryFilter[T any](db *DB, p expr.Predicate) {
	db.HasQueryFilter(reflect.TypeFor[T](), p)
}

func (db *DB) contextFilters(t reflect.Type) []expr.Predicate {
	db.filters.mu.RLock()
	defer db.filters.mu.RUnlock()
	return db.filters.m[t]
}

func (db *DB) compiler() *query.Compiler {
	return &query.Compiler{Schema: db.schema, ContextFilters: db.contextFilters}
}

func (db *DB) entity(t reflect.Type) (*schema.Entity, error) {
	return db.schema.Of(expr.Deref(t))
}

// source is a data source with its dialect.
type source struct {
	name    string
	ex      dialect.ExecQuerier
	dialect *sql.Dialect
	tx      bool
}

// source returns the data source named name. The empty name is the
// default data source, or its transaction.
func (db *DB) source(name string) (*source, error) {
	if name == "" {
		if db.tx != nil {
			return &source{ex: db.tx, dialect: db.dialect, tx: true}, nil
		}
		return &source{ex: db.drv, dialect: db.dialect}, nil
	}
	drv, ok := db.sources[name]
	if !ok {
		return nil, fmt.Errorf("client: unknown datasource %q", name)
	}
	if drv == db.drv {
		s, err := db.source("")
		if err == nil {
			s.name = name
		}
		return s, err
	}
	d, err := DialectOf(drv.Dialect())
	if err != nil {
		return nil, err
	}
	return &source{name: name, ex: drv, dialect: d}, nil
}
