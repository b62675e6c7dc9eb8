package preference

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/obranotify/internal/logging"
	"github.com/nhle/obranotify/internal/model"
)

// Domain labels attached to failed operations.
const (
	LabelLoad   = "Error al cargar preferencias"
	LabelUpdate = "Error al actualizar preferencias"
)

// OpError is a failed preference operation carrying its display label.
type OpError struct {
	Op    string
	Label string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Label, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Repository persists preferences.
type Repository interface {
	List(ctx context.Context) ([]model.Preference, error)
	Create(ctx context.Context, p model.Preference) (model.Preference, error)
	Update(ctx context.Context, p model.Preference) (model.Preference, error)
	SaveAll(ctx context.Context, prefs []model.Preference) ([]model.Preference, error)
}

// Store holds the logged-in user's preferences, one per context, and
// answers delivery questions against them. The held set only changes after
// the repository confirms a write.
type Store struct {
	repo   Repository
	logger *zap.Logger

	mu     sync.RWMutex
	userID string
	prefs  map[model.Context]model.Preference
	loaded bool
}

// NewStore creates an empty, unloaded store.
func NewStore(repo Repository, logger *zap.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logging.OrNop(logger),
		prefs:  make(map[model.Context]model.Preference),
	}
}

// ShouldReceive reports whether a notification of priority p in context
// ctx should be delivered on channel ch. A context with no held preference
// never receives anything.
func (s *Store) ShouldReceive(ctx model.Context, p model.Priority, ch model.Channel) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pref, ok := s.prefs[ctx]
	if !ok {
		return false
	}
	return pref.Allows(p, ch)
}

// Loaded reports whether Load has completed for the current user.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Get returns the held preference for a context.
func (s *Store) Get(ctx model.Context) (model.Preference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[ctx]
	return p, ok
}

// Preferences returns the held set, known contexts first in display order.
func (s *Store) Preferences() []model.Preference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []model.Preference {
	order := make(map[model.Context]int, len(model.KnownContexts))
	for i, c := range model.KnownContexts {
		order[c] = i
	}
	out := make([]model.Preference, 0, len(s.prefs))
	for _, p := range s.prefs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, iKnown := order[out[i].Context]
		oj, jKnown := order[out[j].Context]
		switch {
		case iKnown && jKnown:
			return oi < oj
		case iKnown != jKnown:
			return iKnown
		default:
			return out[i].Context < out[j].Context
		}
	})
	return out
}

// Load fetches the user's preferences. Known contexts without a stored row
// are created with system defaults. A default that cannot be created is
// still held in memory so delivery does not go silent.
func (s *Store) Load(ctx context.Context, userID string) error {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return &OpError{Op: "load", Label: LabelLoad, Err: err}
	}

	next := make(map[model.Context]model.Preference, len(model.KnownContexts))
	for _, p := range rows {
		if p.UserID == "" {
			p.UserID = userID
		}
		if _, dup := next[p.Context]; dup {
			s.logger.Warn("duplicate preference row", zap.String("context", string(p.Context)))
		}
		next[p.Context] = p
	}

	for _, c := range model.KnownContexts {
		if _, ok := next[c]; ok {
			continue
		}
		def := model.DefaultPreference(userID, c)
		created, err := s.repo.Create(ctx, def)
		if err != nil {
			s.logger.Warn("creating default preference failed",
				zap.String("context", string(c)), zap.Error(err))
			created = def
		}
		if created.Context == "" {
			created = def
		}
		next[c] = created
	}

	s.mu.Lock()
	s.userID = userID
	s.prefs = next
	s.loaded = true
	s.mu.Unlock()

	s.logger.Debug("preferences loaded", zap.Int("count", len(next)))
	return nil
}

// Update writes one preference. The held value changes only on success.
func (s *Store) Update(ctx context.Context, p model.Preference) error {
	s.mu.RLock()
	if p.UserID == "" {
		p.UserID = s.userID
	}
	s.mu.RUnlock()

	saved, err := s.repo.Update(ctx, p)
	if err != nil {
		return &OpError{Op: "update", Label: LabelUpdate, Err: err}
	}
	if saved.Context == "" {
		saved = p
	}

	s.mu.Lock()
	s.prefs[saved.Context] = saved
	s.mu.Unlock()
	return nil
}

// UpdateMany writes several edited preferences in one call, so either all
// of them are saved or none is. Contexts not in changed keep their value.
func (s *Store) UpdateMany(ctx context.Context, changed []model.Preference) error {
	if len(changed) == 0 {
		return nil
	}
	s.mu.RLock()
	userID := s.userID
	s.mu.RUnlock()

	return s.bulk(ctx, "update", func(current []model.Preference) []model.Preference {
		edits := make(map[model.Context]model.Preference, len(changed))
		for _, p := range changed {
			if p.UserID == "" {
				p.UserID = userID
			}
			edits[p.Context] = p
		}
		out := make([]model.Preference, 0, len(current)+len(edits))
		for _, p := range current {
			if e, ok := edits[p.Context]; ok {
				p = e
				delete(edits, p.Context)
			}
			out = append(out, p)
		}
		for _, e := range edits {
			out = append(out, e)
		}
		return out
	})
}

// EnableAll turns every channel on.
func (s *Store) EnableAll(ctx context.Context) error {
	return s.bulk(ctx, "enable-all", EnableAll)
}

// DisableAll turns every channel off.
func (s *Store) DisableAll(ctx context.Context) error {
	return s.bulk(ctx, "disable-all", DisableAll)
}

// ResetToDefaults restores the system default for every context.
func (s *Store) ResetToDefaults(ctx context.Context) error {
	return s.bulk(ctx, "reset", Defaults)
}

// ApplyRoleBasedSettings replaces the set with the role's preset.
func (s *Store) ApplyRoleBasedSettings(ctx context.Context, role string) error {
	preset, err := PresetFor(role)
	if err != nil {
		return err
	}
	return s.bulk(ctx, "apply-role", func(prefs []model.Preference) []model.Preference {
		return ApplyPreset(prefs, preset)
	})
}

// bulk computes the next set from the held one, persists it in a single
// call, and swaps it in only after the repository confirms.
func (s *Store) bulk(ctx context.Context, op string, next func([]model.Preference) []model.Preference) error {
	s.mu.RLock()
	current := s.snapshotLocked()
	s.mu.RUnlock()

	proposed := next(current)
	saved, err := s.repo.SaveAll(ctx, proposed)
	if err != nil {
		return &OpError{Op: op, Label: LabelUpdate, Err: err}
	}
	if len(saved) == 0 {
		saved = proposed
	}

	m := make(map[model.Context]model.Preference, len(saved))
	for _, p := range saved {
		m[p.Context] = p
	}

	s.mu.Lock()
	s.prefs = m
	s.mu.Unlock()
	return nil
}

// Reset drops the held set. Called on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	s.prefs = make(map[model.Context]model.Preference)
	s.loaded = false
}
