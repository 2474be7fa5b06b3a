package sql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/dbexpr"
	"github.com/syssam/veloq/dialect"
)

// PlanInsert splits rows into INSERT commands. A command is flushed before
// a row that would exceed the batch size or the parameter limit, counting
// one parameter per column.
func PlanInsert(d *Dialect, opts Options, table *dbexpr.Table, columns []string, rows [][]Expr) ([]*Command, error) {
	opts = opts.merge(d)
	if len(columns) > 0 && opts.MaxParameters > 0 && len(columns) > opts.MaxParameters {
		return nil, veloq.NewTranslationError(d.Name, "batched INSERT", fmt.Sprintf("%d columns exceed the parameter limit %d", len(columns), opts.MaxParameters))
	}
	var (
		cmds   []*Command
		batch  [][]Expr
		params int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		cmd, err := Translate(d, opts, &dbexpr.Insert{Table: table, Columns: columns, Rows: batch})
		if err != nil {
			return err
		}
		cmds = append(cmds, cmd)
		batch, params = nil, 0
		return nil
	}
	for _, row := range rows {
		full := opts.BatchSize > 0 && len(batch) >= opts.BatchSize
		if opts.MaxParameters > 0 && params+len(columns) > opts.MaxParameters {
			full = true
		}
		if full {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		batch = append(batch, row)
		params += len(columns)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cmds, nil
}

// txOpener is implemented by drivers that can start a transaction. A
// dialect.Tx does not implement it.
type txOpener interface {
	Tx(context.Context) (dialect.Tx, error)
}

// ExecBatches executes the commands and returns the affected row count.
// More than one command on a driver runs in an implicit transaction: an
// error rolls it back and is returned unchanged, joined with the rollback
// error if the rollback fails too.
func ExecBatches(ctx context.Context, ex dialect.ExecQuerier, cmds []*Command, logger *slog.Logger) (int64, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	drv, ok := ex.(txOpener)
	if len(cmds) <= 1 || !ok {
		return execAll(ctx, ex, cmds, logger)
	}
	tx, err := drv.Tx(ctx)
	if err != nil {
		return 0, fmt.Errorf("dialect/sql: begin implicit transaction: %w", err)
	}
	logger.DebugContext(ctx, "implicit transaction started", "batches", len(cmds))
	n, err := execAll(ctx, tx, cmds, logger)
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return 0, &veloq.RollbackError{Err: err, Rollback: rerr}
		}
		logger.DebugContext(ctx, "implicit transaction rolled back", "error", err)
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("dialect/sql: commit implicit transaction: %w", err)
	}
	logger.DebugContext(ctx, "implicit transaction committed", "rows", n)
	return n, nil
}

func execAll(ctx context.Context, ex dialect.ExecQuerier, cmds []*Command, logger *slog.Logger) (int64, error) {
	var total int64
	for i, cmd := range cmds {
		var res sql.Result
		if err := ex.Exec(ctx, cmd.Text, cmd.Args(), &res); err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
		logger.DebugContext(ctx, "batch flushed", "batch", i+1, "of", len(cmds), "rows", n)
	}
	return total, nil
}
