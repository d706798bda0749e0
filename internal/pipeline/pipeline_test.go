package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-igc-fetch/pkg/config"
	"github.com/shouni/go-igc-fetch/pkg/crawler"
	"github.com/shouni/go-igc-fetch/pkg/target"
)

const dayPath = "/en_gb/open-2024/results/open/task-2-on-2024-01-01/daily"

func newConfig(t *testing.T, dryRun bool) *config.Config {
	return &config.Config{Output: t.TempDir(), TimeoutSec: 5, DryRun: dryRun}
}

func newServer(t *testing.T) *url.URL {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(dayPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1>Open 2024</h1>
<a href="/en_gb/download-contest-flight/1">D-1234</a>
<a href="/en_gb/download-contest-flight/2"></a>
</body></html>`)
	})
	mux.HandleFunc("/en_gb/download-contest-flight/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "AXXX\r\n")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	return u
}

func TestRun_Day(t *testing.T) {
	cfg := newConfig(t, false)
	report, err := Run(context.Background(), cfg, "https://www.soaringspot.com"+dayPath, Options{BaseURL: newServer(t)})
	require.NoError(t, err)

	assert.Equal(t, target.KindDay, report.Scope.Kind)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "D-1234", report.Results[0].Task.Callsign)
	// テキストのないリンクには代替コールサインが付与される
	assert.Equal(t, "UNKNOWN1", report.Results[1].Task.Callsign)
	assert.FileExists(t, report.Results[1].Path)
	assert.Equal(t, 2, report.Summary.Succeeded)
}

func TestRun_InvalidURL(t *testing.T) {
	report, err := Run(context.Background(), newConfig(t, true), "not a url", Options{})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, target.ErrUnrecognizedShape)
}

func TestRun_RootUnavailable(t *testing.T) {
	cfg := newConfig(t, true)
	report, err := Run(context.Background(), cfg, "https://www.soaringspot.com/en_gb/missing", Options{BaseURL: newServer(t)})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, crawler.ErrRootUnavailable)
}
