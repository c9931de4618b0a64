package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HypothesisValidator/internal/domain"
)

func newTestFetcher(opts FetcherOptions) *HTTPFetcher {
	return NewHTTPFetcher(nil, nil, opts, nil)
}

func TestFetchExtractsArticle(t *testing.T) {
	t.Parallel()

	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Sample Study</title></head>
			<body><nav>menu</nav><article><p>Caloric restriction delays aging in primates.</p></article></body></html>`))
	}))
	defer srv.Close()

	parsed, err := newTestFetcher(FetcherOptions{}).Fetch(context.Background(), srv.URL+"/study")
	require.NoError(t, err)
	assert.Equal(t, "Sample Study", parsed.Title)
	assert.Equal(t, "Caloric restriction delays aging in primates.", parsed.Content)
	assert.True(t, strings.HasPrefix(gotUA, "Mozilla/5.0"), "expected browser user agent, got %q", gotUA)
	assert.Contains(t, gotAccept, "text/html")
}

func TestFetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><main>Moved content body</main></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	parsed, err := newTestFetcher(FetcherOptions{}).Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, "Moved content body", parsed.Content)
}

func TestFetchFailuresAreTyped(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><script>only()</script></body></html>`))
	})
	mux.HandleFunc("/huge", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := newTestFetcher(FetcherOptions{MaxBodyBytes: 1024})

	cases := []struct {
		name   string
		url    string
		status int
	}{
		{name: "not found", url: srv.URL + "/missing", status: http.StatusNotFound},
		{name: "pdf", url: srv.URL + "/pdf", status: http.StatusOK},
		{name: "no content", url: srv.URL + "/empty", status: http.StatusOK},
		{name: "too large", url: srv.URL + "/huge", status: http.StatusOK},
		{name: "bad scheme", url: "ftp://example.org/file", status: 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := fetcher.Fetch(context.Background(), tc.url)
			var fe *domain.FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.status, fe.StatusCode)
			assert.Equal(t, tc.url, fe.URL)
		})
	}
}

func TestFetchHonoursContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestFetcher(FetcherOptions{}).Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiterIsPerHost(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(FetcherOptions{HostRate: 1, HostBurst: 1})
	a := f.limiterFor("pmc.ncbi.nlm.nih.gov")
	assert.Same(t, a, f.limiterFor("PMC.ncbi.nlm.nih.gov"), "same host shares a limiter")
	assert.NotSame(t, a, f.limiterFor("example.org"))
}
