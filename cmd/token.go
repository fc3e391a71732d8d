package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/regd/internal/httpapi"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the admin API",
	Long: `Sign a token with http.jwt_secret. Send it as
"Authorization: Bearer <token>" to /api/v1/*.

Example:
  curl -H "Authorization: Bearer $(regd token --ttl 1h)" localhost:9763/api/v1/mounts`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tokens := httpapi.NewTokenService(cfg.HTTP.JWTSecret)
		if tokens == nil {
			return errors.New("http.jwt_secret is not set; the admin API is unauthenticated")
		}
		token, err := tokens.Issue(tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
