package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"bare array", `[{"id":1},{"id":2}]`, 2},
		{"data envelope", `{"success": true, "data": [{"id":1}]}`, 1},
		{"spring page", `{"content": [{"id":1},{"id":2},{"id":3}], "totalElements": 3}`, 3},
		{"nested envelope", `{"data": {"content": [{"id":1}]}}`, 1},
		{"null", `null`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := DecodeList([]byte(tt.input))
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}

	_, err := DecodeList([]byte(`{"unexpected": []}`))
	assert.Error(t, err)
	_, err = DecodeList([]byte(`42`))
	assert.Error(t, err)
}

type widget struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}

func TestResource_CRUD(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/widgets", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"key": "a", "value": 1}]}`))
	})
	mux.HandleFunc("POST /api/widgets", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"key": "b", "value": 2}}`))
	})
	mux.HandleFunc("PUT /api/widgets/{key}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a b", r.PathValue("key"))
		w.WriteHeader(http.StatusNoContent)
	})

	res := NewResource[widget](newTestClient(t, mux), "/widgets")
	ctx := context.Background()

	list, err := res.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []widget{{Key: "a", Value: 1}}, list)

	created, err := res.Create(ctx, widget{Key: "b"})
	require.NoError(t, err)
	assert.Equal(t, widget{Key: "b", Value: 2}, created)

	updated, err := res.Update(ctx, "a b", widget{Key: "a b", Value: 7})
	require.NoError(t, err)
	assert.Equal(t, widget{Key: "a b", Value: 7}, updated, "empty body keeps the sent value")
}
