package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/obranotify/internal/realtime"
	"github.com/nhle/obranotify/internal/session"
)

func newPingCmd(e *env) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Measure the round trip to the realtime hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSession(cmd.Context(), true, func(ctx context.Context, s *session.Session) error {
				if state := s.Transport.State(); state != realtime.StateConnected {
					return fmt.Errorf("hub not connected (%s)", state)
				}

				pong := make(chan struct{}, 1)
				id := s.Transport.On(realtime.EventPong, func(realtime.Event) {
					select {
					case pong <- struct{}{}:
					default:
					}
				})
				defer s.Transport.Off(id)

				start := time.Now()
				s.Transport.Ping()

				timer := time.NewTimer(timeout)
				defer timer.Stop()
				select {
				case <-pong:
					fmt.Fprintf(cmd.OutOrStdout(), "pong en %s\n", time.Since(start).Round(time.Millisecond))
					return nil
				case <-timer.C:
					return fmt.Errorf("no pong within %s", timeout)
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the pong")
	return cmd
}
