package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/sound"
)

// withSettings opens the cache store for sound settings. No session is
// needed: the settings are local.
func (e *env) withSettings(fn func(s *sound.Settings) error) error {
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(sound.NewSettings(st, e.logger))
}

func newSoundCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sound",
		Short: "Show or change notification sounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSettings(func(s *sound.Settings) error {
				on, vol := s.Current(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "Sonidos: %s\nVolumen: %d%%\n", onOff(on), int(vol*100))
				return nil
			})
		},
	}

	toggle := func(use string, on bool) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: "Turn notification sounds " + use,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.withSettings(func(s *sound.Settings) error {
					return s.SetEnabled(cmd.Context(), on)
				})
			},
		}
	}

	volume := &cobra.Command{
		Use:   "volume <0..1>",
		Short: "Set the sound volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid volume %q: %w", args[0], err)
			}
			return e.withSettings(func(s *sound.Settings) error {
				return s.SetVolume(cmd.Context(), v)
			})
		},
	}

	test := &cobra.Command{
		Use:   "test [priority]",
		Short: "Play the cue for a priority",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := model.PriorityNormal
			if len(args) == 1 {
				parsed, err := model.ParsePriority(args[0])
				if err != nil {
					return err
				}
				p = parsed
			}
			return e.withSettings(func(s *sound.Settings) error {
				player := sound.CommandPlayer{Dir: e.cfg.Sound.Dir, Command: e.cfg.Sound.Command}
				n := sound.NewNotifier(s, player, sound.Beeper{Out: cmd.ErrOrStderr()}, e.logger)
				n.Notify(cmd.Context(), p)
				return nil
			})
		},
	}

	cmd.AddCommand(toggle("on", true), toggle("off", false), volume, test)
	return cmd
}
