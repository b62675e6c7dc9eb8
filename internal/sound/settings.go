package sound

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/nhle/obranotify/internal/logging"
)

// Persisted setting keys.
const (
	KeyEnabled = "notificationSoundsEnabled"
	KeyVolume  = "notificationSoundVolume"
)

// DefaultVolume is used when no volume has been stored.
const DefaultVolume = 0.5

// SettingsStore is the client-local key/value store.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Settings reads and writes the sound on/off flag and volume.
type Settings struct {
	store  SettingsStore
	logger *zap.Logger
}

// NewSettings creates Settings over a store.
func NewSettings(store SettingsStore, logger *zap.Logger) *Settings {
	return &Settings{store: store, logger: logging.OrNop(logger)}
}

// Current returns the stored flag and volume. Unreadable values fall back to
// enabled at DefaultVolume.
func (s *Settings) Current(ctx context.Context) (enabled bool, volume float64) {
	return s.Enabled(ctx), s.Volume(ctx)
}

// Enabled reports whether sounds are on. Defaults to true.
func (s *Settings) Enabled(ctx context.Context) bool {
	v, ok, err := s.store.GetSetting(ctx, KeyEnabled)
	if err != nil {
		s.logger.Warn("reading sound setting", zap.Error(err))
		return true
	}
	if !ok {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// Volume returns the stored volume clamped to [0, 1].
func (s *Settings) Volume(ctx context.Context) float64 {
	v, ok, err := s.store.GetSetting(ctx, KeyVolume)
	if err != nil {
		s.logger.Warn("reading sound setting", zap.Error(err))
		return DefaultVolume
	}
	if !ok {
		return DefaultVolume
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return DefaultVolume
	}
	return Clamp(f)
}

// SetEnabled persists the on/off flag.
func (s *Settings) SetEnabled(ctx context.Context, on bool) error {
	return s.store.SetSetting(ctx, KeyEnabled, strconv.FormatBool(on))
}

// SetVolume persists the volume after clamping it.
func (s *Settings) SetVolume(ctx context.Context, v float64) error {
	return s.store.SetSetting(ctx, KeyVolume, strconv.FormatFloat(Clamp(v), 'f', -1, 64))
}

// Clamp bounds v to [0, 1]; NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
