package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/regd/internal/dataaccess"
	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/presentation"
	"github.com/zjrosen/regd/internal/regctx"
	"github.com/zjrosen/regd/internal/tenant"
)

var (
	logsPath   string
	logsUser   string
	logsAction string
	logsSince  time.Duration
	logsLimit  int
	logsTenant int
	logsAsc    bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query the activity log (REG_LOG)",
	Long: `Print activity records from the current dbConfig, newest first.

Examples:
  regd logs --path /_system/governance/trunk/services/echo
  regd logs --user admin --action update --since 24h
  regd logs --limit 0 -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		q := dataaccess.NewLogQuery()
		q.Path = logsPath
		q.User = logsUser
		q.Limit = logsLimit
		q.TenantID = logsTenant
		q.Ascending = logsAsc
		if logsAction != "" {
			a, ok := dataaccess.ParseAction(logsAction)
			if !ok {
				return fmt.Errorf("unknown action %q", logsAction)
			}
			q.Action = a
		}
		if logsSince > 0 {
			q.From = time.Now().Add(-logsSince)
		}

		return withContext(cmd, func(c *regctx.Context, _ descriptor.Warnings) error {
			m, err := c.DataAccess(cmd.Context())
			if err != nil {
				return err
			}
			records, err := m.Logs().Logs(cmd.Context(), q)
			if err != nil {
				return err
			}
			f, err := newFormatter(cmd)
			if err != nil {
				return err
			}
			return f.FormatLogs(presentation.Logs(records))
		})
	},
}

func init() {
	f := logsCmd.Flags()
	f.StringVar(&logsPath, "path", "", "resource path (exact match)")
	f.StringVar(&logsUser, "user", "", "user id")
	f.StringVar(&logsAction, "action", "", "action name, e.g. update, delete, add-association")
	f.DurationVar(&logsSince, "since", 0, "only records newer than this, e.g. 24h")
	f.IntVar(&logsLimit, "limit", 50, "maximum records (0 for all)")
	f.IntVar(&logsTenant, "tenant", tenant.InvalidID, "tenant id (default: every tenant)")
	f.BoolVar(&logsAsc, "asc", false, "oldest first")
	rootCmd.AddCommand(logsCmd)
}
