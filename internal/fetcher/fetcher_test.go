package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalizeTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		href string
		want string
		ok   bool
	}{
		{"./Apple", "Apple", true},
		{"./Apple_pie", "Apple pie", true},
		{"./Caf%C3%A9", "Café", true},
		{"./Apple#History", "", false},
		{"./Apple?action=edit", "", false},
		{"./File:Apple.jpg", "", false},
		{"./Category:Fruits", "", false},
		{"./Template:Infobox", "", false},
		{"./Help:Editing", "", false},
		{"./Special:Random", "", false},
		{"./Wikipedia:About", "", false},
		{"/wiki/Apple", "", false},
		{"https://example.com", "", false},
		{"./", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeTarget(tc.href)
		require.Equal(t, tc.ok, ok, "href %q", tc.href)
		require.Equal(t, tc.want, got, "href %q", tc.href)
	}
}

func TestFetchLinks_ExtractsAndDeduplicates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/page/html/Apple", r.URL.Path)
		_, _ = w.Write([]byte(`<html><body>
			<a href="./Banana">Banana</a>
			<a href="./Cherry_pie">Cherry pie</a>
			<a href="./Banana">Banana again</a>
			<a href="./File:Apple.jpg">picture</a>
			<a href="./Banana#Taxonomy">section</a>
			<a href="/wiki/Absolute">absolute</a>
		</body></html>`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second}, zap.NewNop())
	links, err := c.FetchLinks(context.Background(), "Apple")
	require.NoError(t, err)
	require.Equal(t, []string{"Banana", "Cherry pie"}, links)
}

func TestFetchLinks_EscapesTitle(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`<html><body></body></html>`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second}, zap.NewNop())
	links, err := c.FetchLinks(context.Background(), "Apple pie/recipe")
	require.NoError(t, err)
	require.Empty(t, links)
	require.Equal(t, "/page/html/Apple%20pie%2Frecipe", gotPath)
}

func TestFetchLinks_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second}, zap.NewNop())
	_, err := c.FetchLinks(context.Background(), "Nonexistent")
	require.ErrorIs(t, err, ErrPageMissing)
}

func TestFetchLinks_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second}, zap.NewNop())
	_, err := c.FetchLinks(context.Background(), "Apple")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrPageMissing)
}
