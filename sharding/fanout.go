package sharding

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

type fanOut struct {
	limit  int
	logger *slog.Logger
}

// FanOutOption configures FanOut.
type FanOutOption func(*fanOut)

// WithLimit bounds the number of routes executed at once.
func WithLimit(n int) FanOutOption {
	return func(f *fanOut) { f.limit = n }
}

// WithFanOutLogger sets the logger of FanOut.
func WithFanOutLogger(l *slog.Logger) FanOutOption {
	return func(f *fanOut) { f.logger = l }
}

// FanOut runs fn for every route in parallel and concatenates the results
// in route order. The first error cancels the other routes and is returned.
func FanOut[T any](ctx context.Context, routes []*RouteTable, fn func(context.Context, *RouteTable) ([]T, error), opts ...FanOutOption) ([]T, error) {
	f := &fanOut{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(f)
	}
	if len(routes) == 1 {
		return fn(ctx, routes[0])
	}
	results := make([][]T, len(routes))
	g, ctx := errgroup.WithContext(ctx)
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}
	for i, rt := range routes {
		g.Go(func() error {
			rs, err := fn(ctx, rt)
			if err != nil {
				return fmt.Errorf("sharding: route %s: %w", rt, err)
			}
			results[i] = rs
			f.logger.DebugContext(ctx, "shard finished", "route", rt.String(), "rows", len(rs))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var n int
	for _, rs := range results {
		n += len(rs)
	}
	out := make([]T, 0, n)
	for _, rs := range results {
		out = append(out, rs...)
	}
	return out, nil
}
