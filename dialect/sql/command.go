package sql

import (
	"github.com/syssam/veloq/dbexpr"
)

// Options configures one translation.
type Options struct {
	// BindByName binds parameters by name and reuses a parameter for equal
	// values. Otherwise parameters are positional and never reused.
	BindByName bool
	// Paging selects the paging strategy. PagingDefault uses the dialect's.
	Paging PagingMode
	// BatchSize is the maximum row count of one batched INSERT.
	BatchSize int
	// MaxParameters is the maximum parameter count of one statement.
	MaxParameters int
}

// merge fills the zero fields of o from the dialect defaults.
func (o Options) merge(d *Dialect) Options {
	if o.Paging == PagingDefault {
		o.Paging = d.Paging
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.MaxParameters <= 0 {
		o.MaxParameters = d.MaxParameters
	}
	if o.BindByName && !d.SupportsNamed && !d.Ordinal {
		o.BindByName = false
	}
	return o
}

// Command is a compiled statement with its parameters.
type Command struct {
	Text   string
	Params []*Param
	// Named reports whether Args binds with sql.Named.
	Named bool
	// Returns lists the columns the statement reads back, in order.
	Returns []string
	// ReturnStyle is how Returns are read back.
	ReturnStyle ReturnStyle
}

// Args returns the database/sql arguments of the command.
func (c *Command) Args() []any {
	return bindArgs(c.Params, c.Named)
}

// Outputs returns the values written into the output parameters, in
// order.
func (c *Command) Outputs() []any {
	var out []any
	for _, p := range c.Params {
		if p.Output {
			out = append(out, *p.Value.(*any))
		}
	}
	return out
}

// Translate renders e for the dialect. The zero Options fields take the
// dialect defaults.
func Translate(d *Dialect, opts Options, e dbexpr.Expr) (*Command, error) {
	g := NewGenerator(d, opts)
	e.Accept(g)
	if err := g.Err(); err != nil {
		return nil, err
	}
	return g.Command(), nil
}
