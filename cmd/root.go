// Package cmd implements the command line interface.
package cmd

import (
	"time"

	"github.com/savid/radio-schedule/config"
	"github.com/savid/radio-schedule/pkg/data"
	"github.com/savid/radio-schedule/pkg/schedule"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// options holds the persistent flags. Flag values only override the config
// file when they were set explicitly.
type options struct {
	configFile string
	flags      config.Config
}

// NewRootCLI builds the root command with all subcommands.
func NewRootCLI() *cobra.Command {
	return newRootCLI(&options{})
}

func newRootCLI(opts *options) *cobra.Command {
	defaults := config.Default()

	rootCmd := &cobra.Command{
		Use:           "radio-schedule",
		Short:         "Fetch, cache and serve radio channel schedules",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Path of a YAML config file (optional)")
	pf.StringVar(&opts.flags.BaseURL, "base-url", defaults.BaseURL, "Root URL of the schedule API")
	pf.StringVar(&opts.flags.LogLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.flags.LogFile, "log-file", "", "Also write logs to this file, rotated")
	pf.StringVar(&opts.flags.Timezone, "timezone", "", "Zone episodes are shown in (default: system local)")
	pf.DurationVar(&opts.flags.RequestTimeout, "timeout", defaults.RequestTimeout, "Timeout of a single document request")
	pf.StringVar(&opts.flags.UserAgent, "user-agent", defaults.UserAgent, "User-Agent sent to the API")

	rootCmd.AddCommand(newServeCLI(opts))
	rootCmd.AddCommand(newShowCLI(opts))

	return rootCmd
}

// load resolves defaults, the optional config file and explicit flags, in
// that order, and validates the result.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		var err error
		if cfg, err = config.LoadFile(o.configFile, cfg); err != nil {
			return nil, err
		}
	}

	o.override(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) override(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = o.flags.BaseURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.flags.LogLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = o.flags.LogFile
	}
	if flags.Changed("timezone") {
		cfg.Timezone = o.flags.Timezone
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout = o.flags.RequestTimeout
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent = o.flags.UserAgent
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Port = o.flags.Port
	}
	if flags.Lookup("interval") != nil && flags.Changed("interval") {
		cfg.RefreshInterval = o.flags.RefreshInterval
	}
}

func newRepository(cfg *config.Config, loc *time.Location, logger *logrus.Logger) *data.Repository {
	return data.NewRepository(
		cfg.BaseURL,
		data.NewFetcher(cfg.RequestTimeout, cfg.UserAgent, logger),
		schedule.NewParser(loc, logger),
		logger,
	)
}
