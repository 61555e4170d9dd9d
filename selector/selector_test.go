package selector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.Nil(t, err)
	return doc
}

func TestResolveFirstMatchingStrategyWins(t *testing.T) {
	doc := parse(t, `<div class="message">one</div><div class="post">two</div><div class="post">three</div>`)
	r := NewResolver(nil, nil)

	m := r.Resolve(doc.Selection, PostContainer)
	require.True(t, m.Found)
	require.Equal(t, "post", m.Strategy)
	require.Equal(t, 2, m.Selection.Length())
}

func TestResolveFallsThroughToLaterStrategy(t *testing.T) {
	doc := parse(t, `<div role="article">a</div>`)
	r := NewResolver(nil, nil)

	m := r.Resolve(doc.Selection, PostContainer)
	require.True(t, m.Found)
	require.Equal(t, "article-role", m.Strategy)
}

func TestResolveNotFoundIsNotAnError(t *testing.T) {
	doc := parse(t, `<p>nothing here</p>`)
	r := NewResolver(nil, nil)

	m := r.Resolve(doc.Selection, PostContainer)
	require.False(t, m.Found)
	require.NotNil(t, m.Selection)
	require.Equal(t, 0, m.Selection.Length())

	text, m := r.Text(nil, ThreadTitle)
	require.False(t, m.Found)
	require.Equal(t, "", text)
}

func TestTextSkipsBlankMatches(t *testing.T) {
	doc := parse(t, `<h1 class="thread-title">  </h1><h2 class="thread-title"> Real title </h2>`)
	r := NewResolver(nil, nil)

	text, m := r.Text(doc.Selection, ThreadTitle)
	require.True(t, m.Found)
	require.Equal(t, "h2-thread-title", m.Strategy)
	require.Equal(t, "Real title", text)
}

func TestResolverDoesNotCarryStateAcrossDocuments(t *testing.T) {
	r := NewResolver(nil, nil)

	first := r.Resolve(parse(t, `<div class="post">x</div>`).Selection, PostContainer)
	require.Equal(t, "post", first.Strategy)

	second := r.Resolve(parse(t, `<div class="message">x</div>`).Selection, PostContainer)
	require.Equal(t, "message", second.Strategy)
}

func TestParseOverlaysDefaults(t *testing.T) {
	set, err := Parse([]byte(`
post-container:
  - name: article
    selector: article.msg
`))
	require.Nil(t, err)
	require.Equal(t, []Strategy{{Name: "article", Selector: "article.msg"}}, set[PostContainer])
	require.Equal(t, Defaults()[ThreadTitle], set[ThreadTitle])
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse([]byte("no-such-role:\n  - selector: div\n"))
	require.NotNil(t, err)

	_, err = Parse([]byte("post-container:\n  - selector: 'div[['\n"))
	require.NotNil(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.Nil(t, os.WriteFile(path, []byte("thread-title:\n  - selector: h1\n"), 0600))

	set, err := LoadFile(path)
	require.Nil(t, err)
	require.Equal(t, "h1", set[ThreadTitle][0].Selector)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NotNil(t, err)
}
