package batch

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zvonler/threadgrab/fetch"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/output"
	"github.com/zvonler/threadgrab/session"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.Equal(t, nil, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadURLList(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	path := writeFile(t, "urls.txt",
		"https://groups.example.com/g/a/c/1\nnot a url\n\nhttps://groups.example.com/g/a/c/2\n")

	urls, err := ReadURLList(path, zap.New(core))
	require.Equal(t, nil, err)
	require.Equal(t, []string{
		"https://groups.example.com/g/a/c/1",
		"https://groups.example.com/g/a/c/2",
	}, urls)
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "not a url", logs.All()[0].ContextMap()["text"])
}

func TestReadURLListInputErrors(t *testing.T) {
	_, err := ReadURLList(filepath.Join(t.TempDir(), "missing.txt"), nil)
	require.True(t, errors.Is(err, model.ErrInput))

	path := writeFile(t, "urls.txt", "ftp://example.com/file\n# comment\n")
	_, err = ReadURLList(path, nil)
	require.True(t, errors.Is(err, model.ErrInput))
}

func TestGroupOrigin(t *testing.T) {
	require.Equal(t, "https://groups.google.com/g/golang-nuts",
		GroupOrigin("https://groups.google.com/g/golang-nuts/c/AbC123", ""))
	require.Equal(t, "https://groups.google.com/g/golang-nuts",
		GroupOrigin("https://groups.google.com/g/golang-nuts/c/AbC123/m/xyz", "/c/"))
	require.Equal(t, "", GroupOrigin("https://groups.google.com/g/golang-nuts", ""))
	require.Equal(t, "", GroupOrigin("https://groups.google.com/g/golang-nuts/c/", ""))
}

func TestGroupURLsKeepsFirstSeenOrder(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	groups, skipped := GroupURLs([]string{
		"https://x.example/g/b/c/1",
		"https://x.example/g/a/c/2",
		"https://x.example/g/b",
		"https://x.example/g/b/c/3",
		"https://x.example/g/b/c/1",
	}, "", nil, zap.New(core))

	require.Equal(t, []model.Group{
		{OriginURL: "https://x.example/g/b", Threads: []string{"https://x.example/g/b/c/1", "https://x.example/g/b/c/3"}},
		{OriginURL: "https://x.example/g/a", Threads: []string{"https://x.example/g/a/c/2"}},
	}, groups)
	require.Equal(t, []string{"https://x.example/g/b"}, skipped)
	require.Equal(t, 1, logs.Len())

	groups, skipped = GroupURLs([]string{"https://x.example/g/a/c/2", "https://y.example/g/a/c/2"},
		"", regexp.MustCompile(`^https://x\.example/`), nil)
	require.Equal(t, 1, len(groups))
	require.Equal(t, 1, len(skipped))
}

type forumServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

// newForumServer serves thread pages below /g/<group>/c/<id>. Groups named
// "private" answer 403 and threads named "gone" answer 404.
func newForumServer(t *testing.T) *forumServer {
	fs := &forumServer{hits: map[string]int{}}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.hits[r.URL.Path]++
		fs.mu.Unlock()

		if strings.HasSuffix(r.URL.Path, "/gone") {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<html><head><title>Not found</title></head><body></body></html>`)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/g/private/") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		fmt.Fprintf(w, `<html><head><title>Thread %s - Google Groups</title></head><body>
			<div class="post"><span class="author">user-%s</span><div class="content">body of %s</div></div>
		</body></html>`, id, id, id)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *forumServer) hitCount(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits[path]
}

func testOptions() Options {
	return Options{
		Delay:   time.Second,
		Session: session.DefaultOptions(),
		Fetch:   fetch.Options{Retries: 0, BaseDelay: time.Millisecond, Timeout: 5 * time.Second},
	}
}

func newTestOrchestrator(t *testing.T, opts Options, log *zap.Logger) (*Orchestrator, *output.JSONDir, *[]time.Duration) {
	sink, err := output.NewJSONDir(t.TempDir(), "", nil)
	require.Equal(t, nil, err)

	o := NewOrchestrator(opts, nil, sink, log)
	delays := &[]time.Duration{}
	o.Sleep = func(d time.Duration) { *delays = append(*delays, d) }
	return o, sink, delays
}

func jsonFiles(t *testing.T, dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.Equal(t, nil, err)
	return matches
}

func TestRunPersistsValidLinesOfListFile(t *testing.T) {
	server := newForumServer(t)
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	path := writeFile(t, "urls.txt", fmt.Sprintf("%s/g/test/c/one\nthis line is junk\n%s/g/test/c/two\n", server.URL, server.URL))
	urls, err := ReadURLList(path, log)
	require.Equal(t, nil, err)

	opts := testOptions()
	opts.Summary = true
	o, sink, delays := newTestOrchestrator(t, opts, log)

	report, err := o.Run(urls)
	require.Equal(t, nil, err)
	require.True(t, report.Succeeded())
	require.Equal(t, 2, report.Persisted)
	require.Equal(t, 0, report.Failed)
	require.Equal(t, 1, logs.Len())
	require.Equal(t, []time.Duration{time.Second}, *delays)

	files := jsonFiles(t, sink.Dir)
	require.Equal(t, 2, len(files))
	require.Contains(t, files, filepath.Join(sink.Dir, "Thread one_one.json"))

	require.NotNil(t, report.Summary)
	require.Equal(t, 2, report.Summary.ThreadCount)
	require.Equal(t, "user-two", *report.Summary.Threads[1].Posts[0].Author)
}

func TestMissingCookieFileSkipsOnlyThatGroup(t *testing.T) {
	server := newForumServer(t)

	opts := testOptions()
	opts.GroupCookies = map[string]string{
		server.URL + "/g/locked": filepath.Join(t.TempDir(), "missing.json"),
	}
	o, sink, _ := newTestOrchestrator(t, opts, nil)

	report, err := o.Run([]string{
		server.URL + "/g/locked/c/1",
		server.URL + "/g/open/c/2",
	})
	require.Equal(t, nil, err)
	require.Equal(t, 2, report.Groups)
	require.Equal(t, 1, report.GroupsSkipped)
	require.Equal(t, 1, report.Persisted)
	require.Equal(t, 1, len(report.Errors))
	require.True(t, errors.Is(report.Errors[0], model.ErrAuth))
	require.Equal(t, 0, server.hitCount("/g/locked/c/1"))
	require.Equal(t, 1, len(jsonFiles(t, sink.Dir)))
}

func TestRejectedGroupSkipsRemainingThreads(t *testing.T) {
	server := newForumServer(t)
	cookies := writeFile(t, "cookies.json", `{"SID": "abc", "HSID": "def"}`)

	opts := testOptions()
	opts.CookieFile = cookies
	o, _, _ := newTestOrchestrator(t, opts, nil)

	report, err := o.Run([]string{
		server.URL + "/g/private/c/1",
		server.URL + "/g/private/c/2",
		server.URL + "/g/public/c/3",
	})
	require.Equal(t, nil, err)
	require.Equal(t, 1, report.GroupsSkipped)
	require.Equal(t, 1, report.Persisted)
	require.Equal(t, 2, report.Failed)
	require.True(t, errors.Is(report.Errors[0], model.ErrAuth))
	require.Equal(t, 1, server.hitCount("/g/private/c/1"))
	require.Equal(t, 0, server.hitCount("/g/private/c/2"))
}

func TestRejectionAfterUndecidedFetchSkipsGroup(t *testing.T) {
	server := newForumServer(t)
	o, sink, _ := newTestOrchestrator(t, testOptions(), nil)

	report, err := o.Run([]string{
		server.URL + "/g/private/c/gone",
		server.URL + "/g/private/c/secret",
		server.URL + "/g/private/c/later",
		server.URL + "/g/public/c/3",
	})
	require.Equal(t, nil, err)
	require.Equal(t, 1, report.GroupsSkipped)
	require.Equal(t, 2, report.Persisted)
	require.Equal(t, 2, report.Failed)
	require.Equal(t, 1, len(report.Errors))
	require.True(t, errors.Is(report.Errors[0], model.ErrAuth))
	require.Equal(t, 1, server.hitCount("/g/private/c/secret"))
	require.Equal(t, 0, server.hitCount("/g/private/c/later"))

	files := jsonFiles(t, sink.Dir)
	require.Equal(t, 2, len(files))
	for _, f := range files {
		require.False(t, strings.Contains(filepath.Base(f), "secret"))
	}
}

func TestRunWithoutThreadURLsIsInputError(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testOptions(), nil)
	_, err := o.Run([]string{"https://x.example/g/a"})
	require.True(t, errors.Is(err, model.ErrInput))
}
