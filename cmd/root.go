package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/regd/internal/config"
	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/presentation"
	"github.com/zjrosen/regd/internal/regctx"
	"github.com/zjrosen/regd/internal/secrets"
)

// localConfigFile is looked up in the working directory before the user
// config.
const localConfigFile = ".regd.yaml"

var (
	version = "dev"
	cfgFile string
	output  string
	cfg     config.Config
	v       *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "regd",
	Short: "Load, inspect and serve registry configurations",
	Long: `regd loads a registry descriptor (XML, YAML, JSON, TOML or HCL),
validates it and builds the registry context: databases, remote instances,
mounts, handlers, aspects and query processors.

Use the inspection commands to see what a descriptor produces, or run
"regd serve" to keep the configuration live behind an admin API.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "",
		"settings file (default: ./.regd.yaml or ~/.config/regd/config.yaml)")
	pf.StringP("descriptor", "d", "", "registry descriptor to load")
	pf.String("profile", "", "handler profile to activate")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.StringVarP(&output, "output", "o", presentation.FormatTable, "output format (table, json, yaml)")
}

func initConfig() {
	v = viper.New()
	config.SetDefaults(v)
	config.BindEnv(v)

	pf := rootCmd.PersistentFlags()
	_ = v.BindPFlag("descriptor.path", pf.Lookup("descriptor"))
	_ = v.BindPFlag("descriptor.profile", pf.Lookup("profile"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))

	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case fileExists(localConfigFile):
		v.SetConfigFile(localConfigFile)
	default:
		v.AddConfigPath(config.DefaultDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// loadSettings reads the settings file, decodes it and sets up logging.
// A missing settings file is not an error.
func loadSettings(_ *cobra.Command, _ []string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(cfgFile == "" && os.IsNotExist(err)) {
			return fmt.Errorf("reading settings: %w", err)
		}
	}

	decoded, err := config.Decode(v)
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	cfg = decoded
	return initLogging(cfg.Log)
}

func initLogging(lc config.LogConfig) error {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	format, err := log.ParseFormat(lc.Format)
	if err != nil {
		return err
	}
	opts := log.Options{Level: level, Format: format}
	if lc.Path == "" {
		log.InitWriter(os.Stderr, opts)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(lc.Path), 0o750); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	if _, err := log.Init(lc.Path, opts); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func loadDescriptor() (*descriptor.Descriptor, descriptor.Warnings, error) {
	d, warnings, err := descriptor.Load(cfg.Descriptor.Path, cfg.DescriptorOptions()...)
	if err != nil {
		return nil, warnings, fmt.Errorf("loading %s: %w", cfg.Descriptor.Path, err)
	}
	return d, warnings, nil
}

func secretResolver() (*secrets.Resolver, error) {
	return secrets.NewResolver(cfg.Secrets.Key)
}

// buildContext loads the descriptor and builds a registry context the
// caller must close.
func buildContext(ctx context.Context) (*regctx.Context, descriptor.Warnings, error) {
	d, warnings, err := loadDescriptor()
	if err != nil {
		return nil, warnings, err
	}
	resolver, err := secretResolver()
	if err != nil {
		return nil, warnings, err
	}
	c, err := regctx.Build(ctx, d, regctx.Options{
		Secrets:           resolver.Resolve,
		LogWriter:         cfg.LogWriter,
		Migrate:           cfg.Database.Migrate,
		DescriptorOptions: cfg.DescriptorOptions(),
	})
	if err != nil {
		return nil, warnings, err
	}
	return c, warnings, nil
}

func withContext(cmd *cobra.Command, fn func(c *regctx.Context, warnings descriptor.Warnings) error) error {
	ctx := cmd.Context()
	c, warnings, err := buildContext(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(context.WithoutCancel(ctx)); err != nil {
			log.ErrorErr(log.CatApp, "Failed to close registry context", err)
		}
	}()
	return fn(c, warnings)
}

func newFormatter(cmd *cobra.Command) (*presentation.Formatter, error) {
	return presentation.NewFormatter(cmd.OutOrStdout(), output)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(ver string) {
	version = ver
	rootCmd.Version = ver
}
