package preference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nhle/obranotify/internal/api"
	"github.com/nhle/obranotify/internal/model"
)

const basePath = "/notification-preferences"

// RemoteRepository stores preferences on the platform backend.
type RemoteRepository struct {
	client   *api.Client
	resource *api.Resource[model.Preference]
}

// NewRemoteRepository creates a repository over the shared API client.
func NewRemoteRepository(c *api.Client) *RemoteRepository {
	return &RemoteRepository{
		client:   c,
		resource: api.NewResource[model.Preference](c, basePath),
	}
}

// List implements Repository.
func (r *RemoteRepository) List(ctx context.Context) ([]model.Preference, error) {
	return r.resource.List(ctx, nil)
}

// Create implements Repository. It goes through the create path so a slow
// first-login backend gets the widened timeout.
func (r *RemoteRepository) Create(ctx context.Context, p model.Preference) (model.Preference, error) {
	return r.resource.Create(ctx, p)
}

// Update implements Repository.
func (r *RemoteRepository) Update(ctx context.Context, p model.Preference) (model.Preference, error) {
	return r.resource.Update(ctx, string(p.Context), p)
}

// SaveAll implements Repository with one bulk PUT.
func (r *RemoteRepository) SaveAll(ctx context.Context, prefs []model.Preference) ([]model.Preference, error) {
	var raw json.RawMessage
	if err := r.client.Put(ctx, basePath, prefs, &raw); err != nil {
		return nil, err
	}
	items, err := api.DecodeList(raw)
	if err != nil {
		// Some backends answer a bulk write with a status object only.
		return prefs, nil
	}
	if len(items) == 0 {
		return prefs, nil
	}

	out := make([]model.Preference, 0, len(items))
	for i, item := range items {
		var p model.Preference
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, fmt.Errorf("decoding saved preference %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}
