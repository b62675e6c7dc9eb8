// Package sound plays a short audio cue for delivered notifications.
// Playback is best-effort: failures fall back to the terminal bell and are
// never returned to the caller.
package sound

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/obranotify/internal/logging"
	"github.com/nhle/obranotify/internal/model"
)

// Category is the audio cue played for a priority.
type Category string

const (
	CategoryError   Category = "error"
	CategoryWarning Category = "warning"
	CategorySuccess Category = "success"
	CategoryDefault Category = "default"
)

// CategoryFor maps a priority to its cue.
func CategoryFor(p model.Priority) Category {
	switch p {
	case model.PriorityCritical:
		return CategoryError
	case model.PriorityHigh:
		return CategoryWarning
	case model.PriorityNormal:
		return CategorySuccess
	default:
		return CategoryDefault
	}
}

// Player plays a cue at the given volume (0..1).
type Player interface {
	Play(ctx context.Context, c Category, volume float64) error
}

// Beeper is the last-resort tone: it rings the terminal bell.
type Beeper struct {
	Out io.Writer
}

// Beep writes a BEL control character.
func (b Beeper) Beep() error {
	out := b.Out
	if out == nil {
		out = os.Stderr
	}
	_, err := io.WriteString(out, "\a")
	return err
}

// Notifier gates playback on the persisted settings.
type Notifier struct {
	settings *Settings
	player   Player
	beeper   Beeper
	logger   *zap.Logger

	mu   sync.Mutex
	warn bool
}

// NewNotifier creates a Notifier. A nil player always uses the bell.
func NewNotifier(settings *Settings, player Player, beeper Beeper, logger *zap.Logger) *Notifier {
	return &Notifier{
		settings: settings,
		player:   player,
		beeper:   beeper,
		logger:   logging.OrNop(logger),
	}
}

// Notify plays the cue for priority p. It never fails.
func (n *Notifier) Notify(ctx context.Context, p model.Priority) {
	enabled, volume := n.settings.Current(ctx)
	if !enabled || volume == 0 {
		return
	}

	cat := CategoryFor(p)
	err := fmt.Errorf("no audio player configured")
	if n.player != nil {
		err = n.player.Play(ctx, cat, volume)
	}
	if err == nil {
		return
	}

	// Log the first failure only; a missing player fails on every cue.
	n.mu.Lock()
	first := !n.warn
	n.warn = true
	n.mu.Unlock()
	if first {
		n.logger.Warn("sound playback failed, using bell", zap.String("category", string(cat)), zap.Error(err))
	}

	if err := n.beeper.Beep(); err != nil {
		n.logger.Debug("bell failed", zap.Error(err))
	}
}
