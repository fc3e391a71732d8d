package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/regd/internal/secrets"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage encrypted descriptor values",
	Long: `Descriptor passwords may be written as references instead of plain
text:

  secret:NAME     read from the environment variable REGD_SECRET_NAME
  enc:<base64>    decrypted with the secrets.key setting`,
}

var secretEncryptCmd = &cobra.Command{
	Use:   "encrypt [value]",
	Short: "Encrypt a value for use in a descriptor",
	Long: `Encrypt a value with the configured secrets.key and print the enc:
reference. The value is read from stdin when no argument is given.

Example:
  echo -n 's3cret' | REGD_SECRETS_KEY=... regd secret encrypt`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Secrets.Key == "" {
			return errors.New("secrets.key is not set (run regd secret keygen)")
		}
		value := ""
		if len(args) == 1 {
			value = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if line == "" && err != nil {
				return fmt.Errorf("reading value from stdin: %w", err)
			}
			value = strings.TrimRight(line, "\r\n")
		}

		r, err := secretResolver()
		if err != nil {
			return err
		}
		ref, err := r.Encrypt(value)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), ref)
		return err
	},
}

var secretKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a random secrets.key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := secrets.GenerateKey()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
		return err
	},
}

func init() {
	secretCmd.AddCommand(secretEncryptCmd, secretKeygenCmd)
	rootCmd.AddCommand(secretCmd)
}
