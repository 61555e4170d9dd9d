package output

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zvonler/threadgrab/model"
)

func TestJSONDirPersist(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewJSONDir(filepath.Join(dir, "out"), "", nil)
	require.Equal(t, nil, err)

	thread := model.NewThread("https://forum.example.com/g/test/c/abc123")
	thread.Title = model.Optional(`What is a <b>/"thing"?`)
	thread.Posts = append(thread.Posts, model.Post{Author: model.Optional("alice"), Content: "a & b"})

	require.Equal(t, "What is a _b___thing___abc123.json", sink.Filename(thread))
	require.Equal(t, nil, sink.Persist("https://forum.example.com/g/test", thread))

	data, err := os.ReadFile(filepath.Join(sink.Dir, sink.Filename(thread)))
	require.Equal(t, nil, err)
	require.Contains(t, string(data), `"content": "a & b"`)
	require.Contains(t, string(data), `"url": "https://forum.example.com/g/test/c/abc123"`)

	// Persisting unchanged input again rewrites identical bytes
	require.Equal(t, nil, sink.Persist("", thread))
	again, err := os.ReadFile(filepath.Join(sink.Dir, sink.Filename(thread)))
	require.Equal(t, nil, err)
	require.Equal(t, data, again)
}

func TestFilenameWithoutTitle(t *testing.T) {
	sink := &JSONDir{}
	thread := model.NewThread("https://forum.example.com/g/test/c/xyz")
	require.Equal(t, "untitled_xyz.json", sink.Filename(thread))
}

func TestWriteSummaryAndURLList(t *testing.T) {
	dir := t.TempDir()

	summaryPath := filepath.Join(dir, "summary.json")
	require.Equal(t, nil, WriteSummary(summaryPath, nil))
	data, err := os.ReadFile(summaryPath)
	require.Equal(t, nil, err)
	require.Equal(t, "{\n  \"thread_count\": 0,\n  \"threads\": []\n}\n", string(data))

	listPath := filepath.Join(dir, "urls.txt")
	topics := []model.Topic{{Title: "a", URL: "https://x.example/c/1"}, {Title: "b", URL: "https://x.example/c/2"}}
	require.Equal(t, nil, WriteURLList(listPath, topics))
	data, err = os.ReadFile(listPath)
	require.Equal(t, nil, err)
	require.Equal(t, "https://x.example/c/1\nhttps://x.example/c/2\n", string(data))
}

type failingSink struct{ calls int }

func (f *failingSink) Persist(string, model.Thread) error {
	f.calls++
	return model.ErrPersistence
}

func TestMultiContinuesPastFailures(t *testing.T) {
	first, second := &failingSink{}, &failingSink{}
	err := Multi{first, second}.Persist("", model.NewThread("https://x.example/c/1"))
	require.True(t, errors.Is(err, model.ErrPersistence))
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)
}

func TestWriteJSONFailureIsPersistenceError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.Equal(t, nil, os.WriteFile(blocker, []byte("x"), 0644))

	err := WriteJSON(filepath.Join(blocker, "nested.json"), model.NewThread("u"))
	require.True(t, errors.Is(err, model.ErrPersistence))
}
