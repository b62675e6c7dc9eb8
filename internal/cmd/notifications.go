package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/notification"
	"github.com/nhle/obranotify/internal/session"
	"github.com/nhle/obranotify/internal/store"
)

type listOptions struct {
	context  string
	priority string
	typ      string
	unread   bool
	page     int
	size     int
	cached   bool
	json     bool
}

func newListCmd(e *env) *cobra.Command {
	var o listOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		Long: `List notifications from the server, newest first. With --cached the
local cache is read instead and no request is made beyond startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f notification.Filter
			if o.context != "" {
				c, err := parseContext(o.context)
				if err != nil {
					return err
				}
				f.Context = c
			}
			if o.priority != "" {
				p, err := model.ParsePriority(o.priority)
				if err != nil {
					return err
				}
				f.Priority = p
			}
			f.Type = o.typ
			f.UnreadOnly = o.unread

			return e.withSession(cmd.Context(), false, func(ctx context.Context, s *session.Session) error {
				var items []model.Notification
				if o.cached {
					cf := store.NotificationFilter{UnreadOnly: f.UnreadOnly, Limit: o.size, Offset: o.page * o.size}
					if f.Context != "" {
						cf.Context = &f.Context
					}
					if f.Priority != "" {
						cf.Priority = &f.Priority
					}
					cached, err := s.Cached(ctx, cf)
					if err != nil {
						return err
					}
					items = cached
				} else {
					page, err := s.Notifications.GetNotifications(ctx, o.page, o.size, f)
					if err != nil {
						return err
					}
					items = page.Items
					if page.HasMore && !o.json {
						defer fmt.Fprintf(cmd.OutOrStdout(), "\nMás resultados: --page %d\n", o.page+1)
					}
				}
				if o.json {
					return printJSON(cmd.OutOrStdout(), items)
				}
				return printNotifications(cmd.OutOrStdout(), items, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&o.context, "context", "", "only this context (SYSTEM, PROJECTS, PERSONNEL, MATERIALS, MACHINERY, INCIDENTS)")
	cmd.Flags().StringVar(&o.priority, "priority", "", "only this priority (LOW, NORMAL, HIGH, CRITICAL)")
	cmd.Flags().StringVar(&o.typ, "type", "", "only this notification type")
	cmd.Flags().BoolVarP(&o.unread, "unread", "u", false, "only unread notifications")
	cmd.Flags().IntVar(&o.page, "page", 0, "page number, starting at 0")
	cmd.Flags().IntVar(&o.size, "size", 20, "page size")
	cmd.Flags().BoolVar(&o.cached, "cached", false, "read the local cache")
	cmd.Flags().BoolVar(&o.json, "json", false, "output as JSON")
	return cmd
}

func newSearchCmd(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search notifications on the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return e.withSession(cmd.Context(), false, func(ctx context.Context, s *session.Session) error {
				items, err := s.Search(ctx, query)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), items)
				}
				return printNotifications(cmd.OutOrStdout(), items, time.Now())
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newReadCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>...",
		Short: "Mark notifications as read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSession(cmd.Context(), false, func(ctx context.Context, s *session.Session) error {
				var err error
				if len(args) == 1 {
					err = s.MarkAsRead(ctx, args[0])
				} else {
					err = s.MarkMultipleAsRead(ctx, args)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d marcada(s) como leída(s)\n", len(args))
				return nil
			})
		},
	}
}

func newReadAllCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark every unread notification as read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSession(cmd.Context(), false, func(ctx context.Context, s *session.Session) error {
				if err := s.MarkAllAsRead(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Todas las notificaciones marcadas como leídas")
				return nil
			})
		},
	}
}

func newDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete notifications",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSession(cmd.Context(), false, func(ctx context.Context, s *session.Session) error {
				if err := s.Delete(ctx, args); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d eliminada(s)\n", len(args))
				return nil
			})
		},
	}
}

func newSummaryCmd(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the unread summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSession(cmd.Context(), false, func(ctx context.Context, s *session.Session) error {
				sum := s.Summary.Snapshot()
				if asJSON {
					return printJSON(cmd.OutOrStdout(), sum)
				}
				return printSummary(cmd.OutOrStdout(), sum)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newStatsCmd(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show notification statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSession(cmd.Context(), false, func(ctx context.Context, s *session.Session) error {
				st, err := s.Notifications.GetStats(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), st)
				}
				return printStats(cmd.OutOrStdout(), st)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
