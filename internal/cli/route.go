package cli

import (
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/syssam/veloq/sharding"
)

// RouteResult is the resolution of one route command.
type RouteResult struct {
	Table     string                 `json:"table"`
	Keys      []any                  `json:"keys,omitempty"`
	Broadcast bool                   `json:"broadcast"`
	Routes    []*sharding.RouteTable `json:"routes"`
}

// NewRouteCommand returns the route command.
func NewRouteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "route <shard-map> <table> [key...]",
		Short: "Resolve the physical tables of a logical table",
		Long: `Resolve the physical tables a statement over the logical table routes to
for the given sharding key values. Integer keys are parsed as int64.
Without keys the table's missing key policy applies.`,
		Args:         cobra.MinimumNArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoute(rootOpts, cmd, args[0], args[1], args[2:])
		},
	}
}

func runRoute(opts *RootOptions, cmd *cobra.Command, path, table string, args []string) error {
	f := &formatter{format: opts.Format, w: cmd.OutOrStdout()}
	cfg, err := loadConfig(f, path)
	if err != nil {
		return err
	}
	router, err := cfg.Router(sharding.WithLogger(opts.logger(cmd)))
	if err != nil {
		return f.fail(ExitFailure, ErrCodeInvalid, "invalid shard map", err, err.Error())
	}
	keys := parseKeys(args)
	res, err := router.Route(table, keys...)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeRoute, "cannot route "+table, err, err.Error())
	}
	var text strings.Builder
	for i, rt := range res.Tables {
		if i > 0 {
			text.WriteByte('\n')
		}
		text.WriteString(rt.String())
	}
	if res.Broadcast {
		text.WriteString("\n(broadcast)")
	}
	return f.success(RouteResult{Table: table, Keys: keys, Broadcast: res.Broadcast, Routes: res.Tables}, text.String())
}

func parseKeys(args []string) []any {
	keys := make([]any, len(args))
	for i, a := range args {
		if n, err := strconv.ParseInt(a, 10, 64); err == nil {
			keys[i] = n
		} else {
			keys[i] = a
		}
	}
	return keys
}

// NewWatchCommand returns the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <shard-map>",
		Short: "Reload a shard map on every change and log the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &formatter{format: rootOpts.Format, w: cmd.OutOrStdout()}
			cfg, err := loadConfig(f, args[0])
			if err != nil {
				return err
			}
			logger := rootOpts.logger(cmd)
			router, err := cfg.Router(sharding.WithLogger(logger))
			if err != nil {
				return f.fail(ExitFailure, ErrCodeInvalid, "invalid shard map", err, err.Error())
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger.InfoContext(ctx, "watching shard map", "path", args[0], "tables", len(cfg.Tables))
			return sharding.Watch(ctx, args[0], router, logger)
		},
	}
}

