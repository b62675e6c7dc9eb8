package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/obranotify/internal/app"
	"github.com/nhle/obranotify/internal/logging"
	"github.com/nhle/obranotify/internal/session"
)

func newWatchCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Aliases: []string{"tui"},
		Short:   "Open the live notification center",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The terminal belongs to the UI; logs always go to the file.
			if e.v.GetBool("verbose") {
				logger, err := logging.New(logging.Config{Level: "debug", File: e.cfg.Log.File})
				if err != nil {
					return err
				}
				e.logger = logger
			}

			return e.withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
				p := tea.NewProgram(app.New(s), tea.WithAltScreen(), tea.WithContext(ctx))
				if _, err := p.Run(); err != nil {
					return fmt.Errorf("running notification center: %w", err)
				}
				return nil
			})
		},
	}
}
