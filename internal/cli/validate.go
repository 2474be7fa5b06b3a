package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/veloq/sharding"
)

// TableSummary describes one logical table of a shard map.
type TableSummary struct {
	Table      string `json:"table"`
	Key        string `json:"key"`
	MissingKey string `json:"missing_key"`
	Tables     int    `json:"tables"`
}

// NewValidateCommand returns the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <shard-map>",
		Short: "Validate a shard map file",
		Long: `Validate the data sources and table rules of a shard map file and
build its routing rules.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd, args[0])
		},
	}
}

func runValidate(opts *RootOptions, cmd *cobra.Command, path string) error {
	f := &formatter{format: opts.Format, w: cmd.OutOrStdout()}
	cfg, err := loadConfig(f, path)
	if err != nil {
		return err
	}
	router, err := cfg.Router(sharding.WithLogger(opts.logger(cmd)))
	if err != nil {
		return f.fail(ExitFailure, ErrCodeInvalid, "invalid shard map", err, err.Error())
	}
	var (
		summary []TableSummary
		text    strings.Builder
	)
	fmt.Fprintf(&text, "✓ %s: %d data sources, %d tables", path, len(cfg.DataSources), len(cfg.Tables))
	for _, table := range cfg.TableNames() {
		rule, _ := router.Rule(table)
		s := TableSummary{Table: table, Key: rule.Column, MissingKey: rule.MissingKey.String(), Tables: len(rule.Algorithm.Tables())}
		summary = append(summary, s)
		fmt.Fprintf(&text, "\n  %s by %s: %d tables, missing key %s", s.Table, s.Key, s.Tables, s.MissingKey)
	}
	return f.success(summary, text.String())
}

// loadConfig reads and validates the shard map at path, reporting
// failures through f.
func loadConfig(f *formatter, path string) (*sharding.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeRead, "cannot read shard map", err, err.Error())
	}
	cfg, err := sharding.ParseConfig(data)
	if err != nil {
		return nil, f.fail(ExitFailure, ErrCodeInvalid, "invalid shard map", err, problems(err)...)
	}
	return cfg, nil
}

// problems splits a joined validation error into its messages.
func problems(err error) []string {
	var joined interface{ Unwrap() []error }
	for e := err; e != nil; e = errors.Unwrap(e) {
		if j, ok := e.(interface{ Unwrap() []error }); ok {
			joined = j
			break
		}
	}
	if joined == nil {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range joined.Unwrap() {
		out = append(out, e.Error())
	}
	return out
}
