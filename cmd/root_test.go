package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-igc-fetch/internal/pipeline"
	"github.com/shouni/go-igc-fetch/pkg/crawler"
	"github.com/shouni/go-igc-fetch/pkg/target"
)

const (
	comp     = "nationals-2025"
	compName = "Nationals 2025"
	compURL  = "https://www.soaringspot.com/en_gb/" + comp
)

// newStubSite は、2クラス (club, standard) を持つ大会を配信するスタブサイトを起動します。
// standard のファイル "S2" はダウンロードに失敗します (404)。
func newStubSite(t *testing.T) *url.URL {
	t.Helper()

	mux := http.NewServeMux()
	html := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, `<html><head><title>%s :: SoaringSpot</title></head><body><h1>%s</h1>%s</body></html>`, compName, compName, body)
		}
	}

	classLink := func(class, name string) string {
		return fmt.Sprintf(`<a href="/en_gb/%s/results/%s/total">%s</a>`, comp, class, name)
	}
	dayLink := func(class string) string {
		return fmt.Sprintf(`<a href="/en_gb/%s/results/%s/task-1-on-2025-06-19/daily">Day 1</a>`, comp, class)
	}
	popover := func(id, callsign string) string {
		return fmt.Sprintf(`<tr><td>%s</td><td><a data-content="&lt;a href=&quot;/en_gb/download-contest-flight/%s?dl=1&quot;&gt;Download&lt;/a&gt;" href="#">%s</a></td></tr>`, callsign, id, callsign)
	}

	mux.HandleFunc("/en_gb/"+comp+"/results", html(classLink("club", "Club")+classLink("standard", "Standard")))
	mux.HandleFunc("/en_gb/"+comp+"/results/club/total", html(classLink("club", "Club")+dayLink("club")))
	mux.HandleFunc("/en_gb/"+comp+"/results/standard/total", html(classLink("standard", "Standard")+dayLink("standard")))
	mux.HandleFunc("/en_gb/"+comp+"/results/club/task-1-on-2025-06-19/daily", html(`<table>`+popover("101", "C1")+popover("102", "C2")+`</table>`))
	mux.HandleFunc("/en_gb/"+comp+"/results/standard/task-1-on-2025-06-19/daily", html(`<table>`+popover("201", "S1")+popover("404", "S2")+`</table>`))
	mux.HandleFunc("/en_gb/download-contest-flight/", func(w http.ResponseWriter, r *http.Request) {
		id := filepath.Base(r.URL.Path)
		if id == "404" || r.URL.Query().Get("dl") != "1" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "AXXX%s\r\nHFDTE190625\r\n", id)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	return u
}

func execute(t *testing.T, opts runOptions, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(opts)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func flightPath(root, class, callsign string) string {
	return filepath.Join(root, compName, class, "2025-06-19", "56J_"+callsign+".igc")
}

func TestRoot_DownloadsClass(t *testing.T) {
	base := newStubSite(t)
	root := t.TempDir()

	stdout, _, err := execute(t, runOptions{baseURL: base},
		compURL+"/results/club/total", "--output", root, "--max-retries", "0")
	require.NoError(t, err)

	for _, cs := range []string{"C1", "C2"} {
		data, err := os.ReadFile(flightPath(root, "club", cs))
		require.NoError(t, err, cs)
		assert.Contains(t, string(data), "HFDTE190625")
	}
	assert.Contains(t, stdout, "完了: 試行 2 件, 成功 2 件, 失敗 0 件")
}

func TestRoot_CompetitionWithFailedFile(t *testing.T) {
	base := newStubSite(t)
	root := t.TempDir()

	stdout, stderr, err := execute(t, runOptions{baseURL: base},
		compURL, "--output", root, "--max-retries", "0", "--verbose")
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrIncomplete)

	// 失敗したファイル以外は保存されている
	for _, p := range []string{
		flightPath(root, "club", "C1"),
		flightPath(root, "club", "C2"),
		flightPath(root, "standard", "S1"),
	} {
		assert.FileExists(t, p)
	}
	assert.NoFileExists(t, flightPath(root, "standard", "S2"))

	assert.Contains(t, stdout, "クロール完了: クラス 2 件, 日 2 件, ファイル 4 件")
	assert.Contains(t, stdout, "完了: 試行 4 件, 成功 3 件, 失敗 1 件")
	assert.Contains(t, stdout, "❌ [4]")
	// ログは標準エラーに出力される
	assert.Contains(t, stderr, `"level":"debug"`)
}

func TestRoot_DryRun(t *testing.T) {
	base := newStubSite(t)
	root := t.TempDir()

	stdout, _, err := execute(t, runOptions{baseURL: base},
		compURL+"/results/standard/task-1-on-2025-06-19/daily", "--output", root, "--dry-run")
	require.NoError(t, err)

	assert.Contains(t, stdout, flightPath(root, "standard", "S2"))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRoot_InvalidURL(t *testing.T) {
	_, _, err := execute(t, runOptions{}, "https://example.com/en_gb/"+comp)
	require.Error(t, err)
	assert.ErrorIs(t, err, target.ErrWrongHost)

	_, _, err = execute(t, runOptions{}, compURL+"/pilots")
	assert.ErrorIs(t, err, target.ErrUnrecognizedShape)
}

func TestRoot_RootUnavailable(t *testing.T) {
	base := newStubSite(t)

	_, _, err := execute(t, runOptions{baseURL: base},
		"https://www.soaringspot.com/en_gb/unknown-competition", "--output", t.TempDir(), "--max-retries", "0")
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrRootUnavailable)
	assert.Contains(t, err.Error(), "404")
}

func TestRoot_Args(t *testing.T) {
	_, _, err := execute(t, runOptions{})
	assert.Error(t, err)

	_, _, err = execute(t, runOptions{}, compURL, "--timeout", "0")
	assert.Error(t, err)
}
