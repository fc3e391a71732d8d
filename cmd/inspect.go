package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/presentation"
	"github.com/zjrosen/regd/internal/regctx"
	"github.com/zjrosen/regd/internal/tenant"
)

var (
	validateStrict bool
	aspectsTenant  int
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the descriptor, build the registry context and print a summary",
	Long: `Load the descriptor and build the registry context exactly as serve
would, then print what it contains. Elements that were skipped are listed as
warnings; use --strict to fail on them.

Examples:
  regd validate -d registry.xml
  regd validate -d registry.yaml --profile production --strict
  regd validate -o json | jq '.mounts'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withContext(cmd, func(c *regctx.Context, warnings descriptor.Warnings) error {
			f, err := newFormatter(cmd)
			if err != nil {
				return err
			}
			if err := f.FormatSummary(presentation.Summary(c, warnings)); err != nil {
				return err
			}
			if validateStrict && len(warnings) > 0 {
				return fmt.Errorf("%d warning(s) in %s", len(warnings), cfg.Descriptor.Path)
			}
			return nil
		})
	},
}

var mountsCmd = &cobra.Command{
	Use:   "mounts",
	Short: "List mounts and the remote instances they point at",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withContext(cmd, func(c *regctx.Context, _ descriptor.Warnings) error {
			f, err := newFormatter(cmd)
			if err != nil {
				return err
			}
			return f.FormatMounts(presentation.Mounts(c))
		})
	},
}

var remotesCmd = &cobra.Command{
	Use:   "remotes",
	Short: "List remote instances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withContext(cmd, func(c *regctx.Context, _ descriptor.Warnings) error {
			f, err := newFormatter(cmd)
			if err != nil {
				return err
			}
			return f.FormatRemotes(presentation.Remotes(c))
		})
	},
}

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List handler registrations by phase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withContext(cmd, func(c *regctx.Context, _ descriptor.Warnings) error {
			f, err := newFormatter(cmd)
			if err != nil {
				return err
			}
			return f.FormatHandlers(presentation.Handlers(c))
		})
	},
}

var aspectsCmd = &cobra.Command{
	Use:   "aspects",
	Short: "List the aspects available to a tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withContext(cmd, func(c *regctx.Context, _ descriptor.Warnings) error {
			f, err := newFormatter(cmd)
			if err != nil {
				return err
			}
			return f.FormatAspects(presentation.Aspects(c, aspectsTenant))
		})
	},
}

var dumpFormat string

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the parsed descriptor",
	Long: `Print the descriptor after parsing, variable substitution and
profile selection.

Formats:
  yaml    the YAML descriptor front-end (loadable by regd)
  json    the typed configuration
  xml     the canonical XML descriptor (loadable by regd)
  legacy  the legacy configuration export with passwords resolved

Passwords are masked in every format except legacy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		d, _, err := loadDescriptor()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		switch strings.ToLower(dumpFormat) {
		case "yaml", "yml":
			data, err := descriptor.MarshalYAML(d.Redacted())
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		case "json":
			data, err := descriptor.MarshalJSON(d.Redacted())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(data))
			return err
		case "xml":
			return descriptor.WriteXML(w, d.Redacted())
		case "legacy":
			resolver, err := secretResolver()
			if err != nil {
				return err
			}
			return descriptor.ExportXML(w, d, resolver.Resolve)
		default:
			return fmt.Errorf("unknown dump format %q (want yaml, json, xml or legacy)", dumpFormat)
		}
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <a> <b>",
	Short: "Show the differences between two descriptors",
	Long: `Load two descriptors (in any supported format) and print a line diff of
their normalized YAML renderings. Passwords are masked.

Example:
  regd diff registry.xml registry.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := descriptor.Load(args[0], cfg.DescriptorOptions()...)
		if err != nil {
			return fmt.Errorf("loading %s: %w", args[0], err)
		}
		b, _, err := descriptor.Load(args[1], cfg.DescriptorOptions()...)
		if err != nil {
			return fmt.Errorf("loading %s: %w", args[1], err)
		}
		diff, err := descriptor.Diff(a, b)
		if err != nil {
			return err
		}
		if diff == "" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "no differences")
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), diff)
		return err
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Rewrite a descriptor in another format",
	Long: `Load a descriptor and save it in the format implied by the output
file extension (.xml or .yaml). Stored passwords and secret
references are kept as written.

Example:
  regd convert registry.xml registry.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _, err := descriptor.Load(args[0], cfg.DescriptorOptions()...)
		if err != nil {
			return fmt.Errorf("loading %s: %w", args[0], err)
		}
		if err := descriptor.Save(args[1], d); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[1])
		return err
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "fail when the descriptor produced warnings")
	aspectsCmd.Flags().IntVar(&aspectsTenant, "tenant", tenant.SuperID, "tenant id")
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "yaml", "yaml, json, xml or legacy")

	rootCmd.AddCommand(validateCmd, mountsCmd, remotesCmd, handlersCmd, aspectsCmd, dumpCmd, diffCmd, convertCmd)
}
