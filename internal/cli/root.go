// Package cli implements pulsectl, the operator command line.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulsetrack/pulse/internal/app"
	"github.com/pulsetrack/pulse/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pulsectl",
		Short: "Operate a pulse deployment",
		Long:  "Manage site tokens, run migrations and housekeeping against the configured stores.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultConfigPath, "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log store activity to stderr")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	return cmd
}

func (o *RootOptions) loadConfig() (*config.AppConfig, error) {
	return config.Load(o.ConfigPath)
}

// open wires the same stores the server uses. The caller must call the
// returned close function.
func (o *RootOptions) open(ctx context.Context) (*app.App, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := zap.NewNop()
	if o.Verbose {
		logger, _ = zap.NewDevelopment()
	}
	a, err := app.New(ctx, logger, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, func() { a.Shutdown(context.WithoutCancel(ctx)) }, nil
}
