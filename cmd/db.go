package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/regctx"
)

// maxConcurrentPings bounds db ping --all.
const maxConcurrentPings = 4

var (
	dbPingAll     bool
	dbMigrateName string
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Check and prepare the configured databases",
}

type pingResult struct {
	name    string
	elapsed time.Duration
	err     error
}

var dbPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Connect to the current dbConfig (or every dbConfig with --all)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg.Database.Migrate = false
		return withContext(cmd, func(c *regctx.Context, _ descriptor.Warnings) error {
			names := []string{c.DefaultDBConfig().Name}
			if dbPingAll {
				names = c.DBConfigNames()
			}
			results := pingAll(cmd.Context(), c, names)

			failed := 0
			for _, r := range results {
				status := "ok"
				if r.err != nil {
					status = r.err.Error()
					failed++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-8s %s\n", r.name, r.elapsed.Round(time.Millisecond), status)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d database(s) unreachable", failed, len(results))
			}
			return nil
		})
	},
}

// pingAll pings every named dbConfig concurrently. Failures are reported
// per database instead of cancelling the others.
func pingAll(ctx context.Context, c *regctx.Context, names []string) []pingResult {
	results := make([]pingResult, len(names))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPings)
	for i, name := range names {
		g.Go(func() error {
			start := time.Now()
			err := ping(ctx, c, name)
			mu.Lock()
			results[i] = pingResult{name: name, elapsed: time.Since(start), err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func ping(ctx context.Context, c *regctx.Context, name string) error {
	dbc, ok := c.DBConfig(name)
	if !ok {
		return fmt.Errorf("%w: dbConfig %q", descriptor.ErrUnknownReference, name)
	}
	m, err := c.OpenDBConfig(ctx, name)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Ping(ctx, dbc)
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the REG_LOG schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withContext(cmd, func(c *regctx.Context, _ descriptor.Warnings) error {
			name := dbMigrateName
			if name == "" {
				name = c.DefaultDBConfig().Name
			}
			m, err := c.OpenDBConfig(cmd.Context(), name)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Migrate(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: schema up to date\n", name)
			return err
		})
	},
}

func init() {
	dbPingCmd.Flags().BoolVar(&dbPingAll, "all", false, "ping every dbConfig")
	dbMigrateCmd.Flags().StringVar(&dbMigrateName, "name", "", "dbConfig to migrate (default: current)")
	dbCmd.AddCommand(dbPingCmd, dbMigrateCmd)
	rootCmd.AddCommand(dbCmd)
}
