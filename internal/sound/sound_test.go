package sound

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/obranotify/internal/model"
)

type memStore map[string]string

func (m memStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memStore) SetSetting(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

type fakePlayer struct {
	err    error
	played []Category
	volume float64
}

func (p *fakePlayer) Play(_ context.Context, c Category, v float64) error {
	p.played = append(p.played, c)
	p.volume = v
	return p.err
}

func TestCategoryFor(t *testing.T) {
	assert.Equal(t, CategoryError, CategoryFor(model.PriorityCritical))
	assert.Equal(t, CategoryWarning, CategoryFor(model.PriorityHigh))
	assert.Equal(t, CategorySuccess, CategoryFor(model.PriorityNormal))
	assert.Equal(t, CategoryDefault, CategoryFor(model.PriorityLow))
	assert.Equal(t, CategoryDefault, CategoryFor("URGENT"))
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	store := memStore{}
	s := NewSettings(store, nil)

	on, vol := s.Current(ctx)
	assert.True(t, on)
	assert.Equal(t, DefaultVolume, vol)

	require.NoError(t, s.SetVolume(ctx, 1.7))
	assert.Equal(t, 1.0, s.Volume(ctx))
	require.NoError(t, s.SetVolume(ctx, -2))
	assert.Equal(t, 0.0, s.Volume(ctx))

	store[KeyVolume] = "loud"
	assert.Equal(t, DefaultVolume, s.Volume(ctx))

	require.NoError(t, s.SetEnabled(ctx, false))
	assert.False(t, s.Enabled(ctx))
	assert.Equal(t, "false", store[KeyEnabled])
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(math.NaN()))
	assert.Equal(t, 0.3, Clamp(0.3))
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()

	t.Run("plays mapped category at stored volume", func(t *testing.T) {
		p := &fakePlayer{}
		var bell bytes.Buffer
		n := NewNotifier(NewSettings(memStore{KeyVolume: "0.8"}, nil), p, Beeper{Out: &bell}, nil)

		n.Notify(ctx, model.PriorityCritical)
		assert.Equal(t, []Category{CategoryError}, p.played)
		assert.Equal(t, 0.8, p.volume)
		assert.Zero(t, bell.Len())
	})

	t.Run("disabled is silent", func(t *testing.T) {
		p := &fakePlayer{}
		var bell bytes.Buffer
		n := NewNotifier(NewSettings(memStore{KeyEnabled: "false"}, nil), p, Beeper{Out: &bell}, nil)

		n.Notify(ctx, model.PriorityCritical)
		assert.Empty(t, p.played)
		assert.Zero(t, bell.Len())
	})

	t.Run("player failure falls back to the bell", func(t *testing.T) {
		p := &fakePlayer{err: errors.New("asset missing")}
		var bell bytes.Buffer
		n := NewNotifier(NewSettings(memStore{}, nil), p, Beeper{Out: &bell}, nil)

		n.Notify(ctx, model.PriorityHigh)
		n.Notify(ctx, model.PriorityHigh)
		assert.Equal(t, "\a\a", bell.String())
	})

	t.Run("no player uses the bell", func(t *testing.T) {
		var bell bytes.Buffer
		n := NewNotifier(NewSettings(memStore{}, nil), nil, Beeper{Out: &bell}, nil)
		n.Notify(ctx, model.PriorityLow)
		assert.Equal(t, "\a", bell.String())
	})
}

func TestCommandPlayer_MissingAsset(t *testing.T) {
	err := CommandPlayer{Dir: t.TempDir()}.Play(context.Background(), CategoryError, 1)
	assert.Error(t, err)
}

func TestCommandPlayer_Args(t *testing.T) {
	name, args := CommandPlayer{Command: "afplay"}.command("/s/error.wav", 0.5)
	assert.Equal(t, "afplay", name)
	assert.Equal(t, []string{"-v", "0.50", "/s/error.wav"}, args)

	_, args = CommandPlayer{Command: "/usr/bin/paplay"}.command("/s/error.wav", 0.5)
	assert.Equal(t, []string{"--volume", "32768", "/s/error.wav"}, args)
}
