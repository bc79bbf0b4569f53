package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_StylesFiltersDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/styles", r.URL.Path)
		_, _ = w.Write([]byte(`{"styles":[{"id":"default","label":"Default"},{"id":"pirate","label":"Pirate","icon":"🏴‍☠️"}]}`))
	}))
	defer srv.Close()

	styles, err := NewClient(srv.URL, nil).Styles(context.Background())
	require.NoError(t, err)
	require.Len(t, styles, 1)
	require.Equal(t, "pirate", styles[0].ID)
}

func TestClient_FallbacksOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, nil)

	styles, err := c.Styles(context.Background())
	require.Error(t, err)
	require.Equal(t, FallbackStyles(), styles)

	models, err := c.Models(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"gpt-4.1", "claude-sonnet-4-20250514"}, models.Models)
}

func TestClient_Models(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":["a","b"],"model_categories":{"openai":["a"],"anthropic":["b"]}}`))
	}))
	defer srv.Close()

	m, err := NewClient(srv.URL, nil).Models(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a", m.Default)
	require.Equal(t, []string{"b"}, m.ModelCategories["anthropic"])
}
