package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/regd/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented settings file",
	Long: `Write the default settings to ./.regd.yaml (or the --config path).
Flags given on the command line, such as --descriptor, are stored in the new
file.

Example:
  regd init -d /etc/regd/registry.xml`,
	Args: cobra.NoArgs,
	// The settings file may not exist yet.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := cfgFile
		if path == "" {
			path = localConfigFile
		}
		if fileExists(path) && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}

		pf := cmd.Flags()
		for flag, key := range map[string]string{
			"descriptor": "descriptor.path",
			"profile":    "descriptor.profile",
			"log-level":  "log.level",
		} {
			if !pf.Changed(flag) {
				continue
			}
			value, _ := pf.GetString(flag)
			if err := config.SaveValue(path, key, value); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "regd %s\n", version)
		return err
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd, versionCmd)
}
