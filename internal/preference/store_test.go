package preference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/obranotify/internal/model"
)

// fakeRepo is an in-memory Repository with injectable failures.
type fakeRepo struct {
	rows      map[model.Context]model.Preference
	listErr   error
	createErr error
	updateErr error
	saveErr   error
	creates   int
	saveCalls int
}

func newFakeRepo(rows ...model.Preference) *fakeRepo {
	r := &fakeRepo{rows: make(map[model.Context]model.Preference)}
	for _, p := range rows {
		r.rows[p.Context] = p
	}
	return r
}

func (r *fakeRepo) List(context.Context) ([]model.Preference, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]model.Preference, 0, len(r.rows))
	for _, p := range r.rows {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeRepo) Create(_ context.Context, p model.Preference) (model.Preference, error) {
	r.creates++
	if r.createErr != nil {
		return model.Preference{}, r.createErr
	}
	r.rows[p.Context] = p
	return p, nil
}

func (r *fakeRepo) Update(_ context.Context, p model.Preference) (model.Preference, error) {
	if r.updateErr != nil {
		return model.Preference{}, r.updateErr
	}
	r.rows[p.Context] = p
	return p, nil
}

func (r *fakeRepo) SaveAll(_ context.Context, prefs []model.Preference) ([]model.Preference, error) {
	r.saveCalls++
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	for _, p := range prefs {
		r.rows[p.Context] = p
	}
	return prefs, nil
}

func loadedStore(t *testing.T, repo *fakeRepo) *Store {
	t.Helper()
	s := NewStore(repo, nil)
	require.NoError(t, s.Load(context.Background(), "u-1"))
	return s
}

func TestStore_FailsClosedBeforeLoad(t *testing.T) {
	s := NewStore(newFakeRepo(), nil)

	assert.False(t, s.Loaded())
	for _, ctx := range model.KnownContexts {
		for _, p := range model.Priorities {
			assert.False(t, s.ShouldReceive(ctx, p, model.ChannelInApp))
			assert.False(t, s.ShouldReceive(ctx, p, model.ChannelEmail))
		}
	}
}

func TestStore_FailsClosedForUnknownContext(t *testing.T) {
	s := loadedStore(t, newFakeRepo())

	for _, p := range model.Priorities {
		assert.False(t, s.ShouldReceive(model.Context("FINANCE"), p, model.ChannelInApp))
	}
}

func TestStore_LoadCreatesMissingDefaults(t *testing.T) {
	custom := model.Preference{
		UserID:          "u-1",
		Context:         model.ContextMaterials,
		InAppEnabled:    false,
		MinimumPriority: model.PriorityHigh,
	}
	repo := newFakeRepo(custom)
	s := loadedStore(t, repo)

	assert.True(t, s.Loaded())
	assert.Equal(t, len(model.KnownContexts)-1, repo.creates)
	assert.Len(t, s.Preferences(), len(model.KnownContexts))

	got, ok := s.Get(model.ContextMaterials)
	require.True(t, ok)
	assert.Equal(t, custom, got)
}

func TestStore_LoadKeepsDefaultsWhenCreateFails(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr = errors.New("boom")
	s := loadedStore(t, repo)

	assert.True(t, s.ShouldReceive(model.ContextSystem, model.PriorityNormal, model.ChannelInApp))
}

func TestStore_LoadFailureIsLabelled(t *testing.T) {
	repo := newFakeRepo()
	repo.listErr = errors.New("down")
	s := NewStore(repo, nil)

	err := s.Load(context.Background(), "u-1")
	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, LabelLoad, opErr.Label)
	assert.False(t, s.Loaded())
}

func TestStore_ShouldReceiveIsMonotonic(t *testing.T) {
	s := loadedStore(t, newFakeRepo())
	ctx := context.Background()

	for _, min := range model.Priorities {
		require.NoError(t, s.Update(ctx, model.Preference{
			Context:         model.ContextIncidents,
			InAppEnabled:    true,
			EmailEnabled:    true,
			MinimumPriority: min,
		}))
		for i, lo := range model.Priorities {
			for _, hi := range model.Priorities[i:] {
				for _, ch := range []model.Channel{model.ChannelInApp, model.ChannelEmail} {
					if s.ShouldReceive(model.ContextIncidents, lo, ch) {
						assert.True(t, s.ShouldReceive(model.ContextIncidents, hi, ch),
							"min=%s lo=%s hi=%s ch=%s", min, lo, hi, ch)
					}
				}
			}
		}
	}
}

func TestStore_UpdateFailureKeepsPreviousValue(t *testing.T) {
	repo := newFakeRepo()
	s := loadedStore(t, repo)
	before, _ := s.Get(model.ContextProjects)

	repo.updateErr = errors.New("conflict")
	err := s.Update(context.Background(), model.Preference{Context: model.ContextProjects})
	require.Error(t, err)

	after, _ := s.Get(model.ContextProjects)
	assert.Equal(t, before, after)
}

func TestStore_BulkOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("disable then enable all", func(t *testing.T) {
		repo := newFakeRepo()
		s := loadedStore(t, repo)

		require.NoError(t, s.DisableAll(ctx))
		assert.False(t, s.ShouldReceive(model.ContextIncidents, model.PriorityCritical, model.ChannelInApp))
		require.NoError(t, s.EnableAll(ctx))
		assert.True(t, s.ShouldReceive(model.ContextMachinery, model.PriorityNormal, model.ChannelEmail))
		assert.Equal(t, 2, repo.saveCalls, "one persistence call per bulk operation")
	})

	t.Run("failed save keeps previous set", func(t *testing.T) {
		repo := newFakeRepo()
		s := loadedStore(t, repo)
		before := s.Preferences()

		repo.saveErr = errors.New("timeout")
		err := s.DisableAll(ctx)

		var opErr *OpError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, LabelUpdate, opErr.Label)
		assert.Equal(t, before, s.Preferences())
		assert.True(t, s.ShouldReceive(model.ContextSystem, model.PriorityNormal, model.ChannelInApp))
	})

	t.Run("role preset", func(t *testing.T) {
		s := loadedStore(t, newFakeRepo())

		require.NoError(t, s.ApplyRoleBasedSettings(ctx, "supervisor"))
		assert.True(t, s.ShouldReceive(model.ContextMachinery, model.PriorityHigh, model.ChannelInApp))
		assert.False(t, s.ShouldReceive(model.ContextMachinery, model.PriorityNormal, model.ChannelInApp))
		assert.False(t, s.ShouldReceive(model.ContextMachinery, model.PriorityCritical, model.ChannelEmail))
		assert.False(t, s.ShouldReceive(model.ContextMaterials, model.PriorityCritical, model.ChannelInApp))

		assert.ErrorIs(t, s.ApplyRoleBasedSettings(ctx, "Intern"), ErrUnknownRole)
	})

	t.Run("reset to defaults", func(t *testing.T) {
		s := loadedStore(t, newFakeRepo())
		require.NoError(t, s.DisableAll(ctx))
		require.NoError(t, s.ResetToDefaults(ctx))

		assert.Equal(t, model.DefaultPreferences("u-1"), s.Preferences())
	})
}

func TestStore_UpdateManyIsAllOrNothing(t *testing.T) {
	repo := newFakeRepo()
	s := loadedStore(t, repo)
	ctx := context.Background()

	incidents, _ := s.Get(model.ContextIncidents)
	incidents.MinimumPriority = model.PriorityCritical
	machinery, _ := s.Get(model.ContextMachinery)
	machinery.InAppEnabled = false
	machinery.UserID = ""

	repo.saveErr = errors.New("backend down")
	err := s.UpdateMany(ctx, []model.Preference{incidents, machinery})
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, LabelUpdate, opErr.Label)

	got, _ := s.Get(model.ContextIncidents)
	assert.Equal(t, model.PriorityNormal, got.MinimumPriority, "no edit applied after a failed save")
	got, _ = s.Get(model.ContextMachinery)
	assert.True(t, got.InAppEnabled)

	repo.saveErr = nil
	require.NoError(t, s.UpdateMany(ctx, []model.Preference{incidents, machinery}))
	assert.Equal(t, 2, repo.saveCalls, "one write per attempt")
	assert.True(t, repo.rows[model.ContextProjects].InAppEnabled, "untouched contexts are resent unchanged")

	got, _ = s.Get(model.ContextIncidents)
	assert.Equal(t, model.PriorityCritical, got.MinimumPriority)
	got, _ = s.Get(model.ContextMachinery)
	assert.False(t, got.InAppEnabled)
	assert.Equal(t, "u-1", got.UserID)
	assert.Len(t, s.Preferences(), len(model.KnownContexts))
}

func TestStore_UpdateManyWithoutChangesWritesNothing(t *testing.T) {
	repo := newFakeRepo()
	s := loadedStore(t, repo)
	require.NoError(t, s.UpdateMany(context.Background(), nil))
	assert.Zero(t, repo.saveCalls)
}

func TestStore_Reset(t *testing.T) {
	s := loadedStore(t, newFakeRepo())
	s.Reset()

	assert.False(t, s.Loaded())
	assert.Empty(t, s.Preferences())
	assert.False(t, s.ShouldReceive(model.ContextSystem, model.PriorityCritical, model.ChannelInApp))
}

func TestApplyPreset_IgnoresCurrentValues(t *testing.T) {
	preset := Presets["Manager"]
	a := ApplyPreset(EnableAll(model.DefaultPreferences("u")), preset)
	b := ApplyPreset(DisableAll(model.DefaultPreferences("u")), preset)
	assert.Equal(t, a, b)

	for _, p := range a {
		want := p.Context != model.ContextMachinery
		assert.Equal(t, want, p.InAppEnabled, p.Context)
		assert.Equal(t, want, p.EmailEnabled, p.Context)
		assert.Equal(t, model.PriorityNormal, p.MinimumPriority)
	}
}
