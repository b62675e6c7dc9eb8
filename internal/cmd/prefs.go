package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/session"
)

func newPrefsCmd(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"preferences"},
		Short:   "Show or change delivery preferences",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSession(cmd.Context(), false, func(ctx context.Context, s *session.Session) error {
				prefs := s.Preferences.Preferences()
				if asJSON {
					return printJSON(cmd.OutOrStdout(), prefs)
				}
				return printPreferences(cmd.OutOrStdout(), prefs)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	cmd.AddCommand(
		newPrefsSetCmd(e),
		newPrefsBulkCmd(e, "enable-all", "Turn every channel on", "Todas las notificaciones activadas",
			func(ctx context.Context, s *session.Session) error { return s.Preferences.EnableAll(ctx) }),
		newPrefsBulkCmd(e, "disable-all", "Turn every channel off", "Todas las notificaciones desactivadas",
			func(ctx context.Context, s *session.Session) error { return s.Preferences.DisableAll(ctx) }),
		newPrefsBulkCmd(e, "reset", "Restore the default preferences", "Preferencias restablecidas",
			func(ctx context.Context, s *session.Session) error { return s.Preferences.ResetToDefaults(ctx) }),
		newPrefsRoleCmd(e),
	)
	return cmd
}

func newPrefsSetCmd(e *env) *cobra.Command {
	var (
		inApp   bool
		email   bool
		minimum string
	)
	cmd := &cobra.Command{
		Use:   "set <context>",
		Short: "Change one context's preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseContext(args[0])
			if err != nil {
				return err
			}
			var minPri model.Priority
			if minimum != "" {
				if minPri, err = model.ParsePriority(minimum); err != nil {
					return err
				}
			}

			return e.withSession(cmd.Context(), false, func(ctx context.Context, s *session.Session) error {
				p, ok := s.Preferences.Get(c)
				if !ok {
					p = model.DefaultPreference(s.Claims().UserID, c)
				}
				if cmd.Flags().Changed("in-app") {
					p.InAppEnabled = inApp
				}
				if cmd.Flags().Changed("email") {
					p.EmailEnabled = email
				}
				if minPri != "" {
					p.MinimumPriority = minPri
				}
				if err := s.Preferences.Update(ctx, p); err != nil {
					return err
				}
				return printPreferences(cmd.OutOrStdout(), []model.Preference{p})
			})
		},
	}
	cmd.Flags().BoolVar(&inApp, "in-app", true, "show in the notification center")
	cmd.Flags().BoolVar(&email, "email", false, "send by email")
	cmd.Flags().StringVar(&minimum, "min", "", "minimum priority (LOW, NORMAL, HIGH, CRITICAL)")
	return cmd
}

func newPrefsBulkCmd(e *env, use, short, done string, op func(ctx context.Context, s *session.Session) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSession(cmd.Context(), false, func(ctx context.Context, s *session.Session) error {
				if err := op(ctx, s); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), done)
				return nil
			})
		},
	}
}

func newPrefsRoleCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "role [name]",
		Short: "Apply a role preset (defaults to your own role)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSession(cmd.Context(), false, func(ctx context.Context, s *session.Session) error {
				role := s.Claims().Role
				if len(args) == 1 {
					role = args[0]
				}
				if err := s.Preferences.ApplyRoleBasedSettings(ctx, role); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Perfil aplicado: %s\n", role)
				return printPreferences(cmd.OutOrStdout(), s.Preferences.Preferences())
			})
		},
	}
}
