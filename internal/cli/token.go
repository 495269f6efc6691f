package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulsetrack/pulse/internal/models"
	"github.com/pulsetrack/pulse/internal/modules/site/token"
	"github.com/pulsetrack/pulse/internal/pkg/pagination"
)

func NewTokenCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage site tokens",
	}
	cmd.AddCommand(newTokenCreateCommand(opts))
	cmd.AddCommand(newTokenGetCommand(opts))
	cmd.AddCommand(newTokenListCommand(opts))
	cmd.AddCommand(newTokenBlockCommand(opts, "block", true))
	cmd.AddCommand(newTokenBlockCommand(opts, "unblock", false))
	cmd.AddCommand(newTokenDeleteCommand(opts))
	return cmd
}

func printToken(p *printer, t *models.TokenModel) error {
	return p.print(t, func(w io.Writer) {
		row(w, "token", t.Token)
		row(w, "id", t.ID)
		row(w, "created_at", t.CreatedAt.Format(time.RFC3339))
		row(w, "blocked", t.IsBlocked)
		row(w, "site_url", deref(t.SiteURL))
		row(w, "site_name", deref(t.SiteName))
	})
}

func newTokenCreateCommand(opts *RootOptions) *cobra.Command {
	var in token.CreateInput
	var widget models.WidgetDefaults

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			in.WidgetDefaults = widget
			t, err := a.Tokens().Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printToken(newPrinter(opts, cmd.OutOrStdout()), t)
		},
	}
	cmd.Flags().StringVar(&in.SiteURL, "site-url", "", "site URL (https:// is added when missing)")
	cmd.Flags().StringVar(&in.SiteName, "site-name", "", "display name")
	cmd.Flags().StringVar((*string)(&widget.Variant), "variant", "", "widget variant (pill|badge|card|floating)")
	cmd.Flags().StringVar(&widget.Color, "color", "", "widget color (#hex)")
	cmd.Flags().StringVar((*string)(&widget.Size), "size", "", "widget size (small|large)")
	cmd.Flags().StringVar((*string)(&widget.Position), "position", "", "floating widget position")
	return cmd
}

func newTokenGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <token>",
		Short: "Show a token, blocked or not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			t, err := a.Tokens().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printToken(newPrinter(opts, cmd.OutOrStdout()), t)
		},
	}
}

func newTokenListCommand(opts *RootOptions) *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tokens, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			items, pag, err := a.Tokens().List(cmd.Context(), pagination.Normalize(page, limit))
			if err != nil {
				return err
			}
			out := struct {
				Tokens     []models.TokenModel `json:"tokens"`
				Total      int64               `json:"total"`
				Page       int                 `json:"page"`
				TotalPages int                 `json:"totalPages"`
			}{items, pag.Total, pag.Page, pag.TotalPages}
			return newPrinter(opts, cmd.OutOrStdout()).print(out, func(w io.Writer) {
				row(w, "TOKEN", "CREATED", "BLOCKED", "SITE")
				for _, t := range items {
					row(w, t.Token, t.CreatedAt.Format(time.RFC3339), t.IsBlocked, deref(t.SiteURL))
				}
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 50, "tokens per page (max 100)")
	return cmd
}

func newTokenBlockCommand(opts *RootOptions, use string, blocked bool) *cobra.Command {
	short := "Block a token; its collect and read requests are rejected"
	if !blocked {
		short = "Unblock a token"
	}
	return &cobra.Command{
		Use:   use + " <token>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			t, err := a.Tokens().SetBlocked(cmd.Context(), args[0], blocked)
			if err != nil {
				return err
			}
			return printToken(newPrinter(opts, cmd.OutOrStdout()), t)
		},
	}
}

func newTokenDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <token>",
		Short: "Delete a token and all of its presence and events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := a.Tokens().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			out := map[string]any{"deleted": args[0]}
			return newPrinter(opts, cmd.OutOrStdout()).print(out, func(w io.Writer) {
				row(w, "deleted", args[0])
			})
		},
	}
}
