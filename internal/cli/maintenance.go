package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/pulsetrack/pulse/internal/database"
	"github.com/pulsetrack/pulse/internal/modules/system/admin"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the SQL schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := database.EnsureSchema(cfg); err != nil {
				return err
			}
			out := map[string]string{"driver": cfg.Database.Driver, "status": "migrated"}
			return newPrinter(opts, cmd.OutOrStdout()).print(out, func(w io.Writer) {
				row(w, "schema migrated", cfg.Database.Driver)
			})
		},
	}
}

// NewPurgeCommand runs the retention jobs once, outside the server's schedule.
func NewPurgeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired events and stale presence now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			events, err := a.Events().Purge(ctx)
			if err != nil {
				return err
			}
			presence, err := a.Presence().Cleanup(ctx)
			if err != nil {
				return err
			}
			out := map[string]int64{"events": events, "presence": presence}
			return newPrinter(opts, cmd.OutOrStdout()).print(out, func(w io.Writer) {
				row(w, "events purged", events)
				row(w, "presence rows removed", presence)
			})
		},
	}
}

func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print registry-wide usage, including potential abuse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			svc := admin.NewService(a.Tokens(), a.Presence(), a.Events(), a.Config().Abuse.Threshold, nil)
			st, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd.OutOrStdout()).print(st, func(w io.Writer) {
				row(w, "tokens", st.TotalTokens)
				row(w, "blocked", st.BlockedTokens)
				row(w, "active", st.ActiveTokens)
				row(w, "events (24h)", st.Events24h)
				row(w, "events (1h)", st.EventsLastHour)
				row(w, "online", st.TotalOnline)
				for _, tc := range st.PotentialAbuse {
					row(w, "potential abuse", tc.Token, tc.Events)
				}
			})
		},
	}
}
