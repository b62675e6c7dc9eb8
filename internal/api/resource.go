package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Resource is a typed CRUD endpoint rooted at Path. List responses may be
// a bare array or an envelope (see DecodeList).
type Resource[T any] struct {
	Client *Client
	Path   string
}

// NewResource creates a Resource for the given collection path.
func NewResource[T any](c *Client, path string) *Resource[T] {
	return &Resource[T]{Client: c, Path: path}
}

// List fetches the collection.
func (r *Resource[T]) List(ctx context.Context, q url.Values) ([]T, error) {
	var raw json.RawMessage
	if err := r.Client.Get(ctx, WithQuery(r.Path, q), &raw); err != nil {
		return nil, err
	}
	items, err := DecodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", r.Path, err)
	}

	out := make([]T, 0, len(items))
	for i, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, fmt.Errorf("decoding %s item %d: %w", r.Path, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Get fetches a single element by key.
func (r *Resource[T]) Get(ctx context.Context, key string) (T, error) {
	var raw json.RawMessage
	if err := r.Client.Get(ctx, r.itemPath(key), &raw); err != nil {
		var zero T
		return zero, err
	}
	return r.decodeOne(raw, *new(T))
}

// Create posts a new element through the create path's fallback tier. An
// empty response body returns v unchanged.
func (r *Resource[T]) Create(ctx context.Context, v T) (T, error) {
	var raw json.RawMessage
	if err := r.Client.Create(ctx, r.Path, v, &raw); err != nil {
		return v, err
	}
	return r.decodeOne(raw, v)
}

// Update replaces the element identified by key. An empty response body
// returns v unchanged.
func (r *Resource[T]) Update(ctx context.Context, key string, v T) (T, error) {
	var raw json.RawMessage
	if err := r.Client.Put(ctx, r.itemPath(key), v, &raw); err != nil {
		return v, err
	}
	return r.decodeOne(raw, v)
}

func (r *Resource[T]) decodeOne(raw json.RawMessage, fallback T) (T, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fallback, nil
	}
	var out T
	if err := json.Unmarshal(DecodeObject(raw), &out); err != nil {
		return fallback, fmt.Errorf("decoding %s: %w", r.Path, err)
	}
	return out, nil
}

// Delete removes the element identified by key.
func (r *Resource[T]) Delete(ctx context.Context, key string) error {
	return r.Client.Delete(ctx, r.itemPath(key), nil, nil)
}

func (r *Resource[T]) itemPath(key string) string {
	return r.Path + "/" + url.PathEscape(key)
}

// listEnvelopeKeys are the wrapper fields the backend uses for collections,
// in lookup order.
var listEnvelopeKeys = []string{"data", "content", "items", "notifications"}

// DecodeList extracts the elements of a list response. It accepts a bare
// JSON array or an object carrying the array under one of the envelope
// keys; an envelope may itself nest another ({"data": {"content": [...]}}).
func DecodeList(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		for _, key := range listEnvelopeKeys {
			if inner, ok := obj[key]; ok {
				return DecodeList(inner)
			}
		}
		return nil, fmt.Errorf("object has none of the list keys %v", listEnvelopeKeys)
	default:
		return nil, fmt.Errorf("expected array or object, got %q", data[:1])
	}
}

// DecodeObject unwraps a single-object response that may be enveloped
// under "data".
func DecodeObject(data []byte) json.RawMessage {
	data = bytes.TrimSpace(data)
	var obj map[string]json.RawMessage
	if len(data) > 0 && data[0] == '{' && json.Unmarshal(data, &obj) == nil {
		if inner, ok := obj["data"]; ok {
			if t := bytes.TrimSpace(inner); len(t) > 0 && t[0] == '{' {
				return inner
			}
		}
	}
	return data
}
