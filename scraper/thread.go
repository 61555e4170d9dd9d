package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/zvonler/threadgrab/fetch"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/selector"
	"go.uber.org/zap"
)

// DefaultTitleSuffixes are stripped from <title> when no title selector
// matches.
var DefaultTitleSuffixes = []string{" - Google Groups"}

type ThreadExtractor struct {
	fetcher       fetch.Fetcher
	resolver      *selector.Resolver
	titleSuffixes []string
	log           *zap.Logger
}

func NewThreadExtractor(fetcher fetch.Fetcher, resolver *selector.Resolver, titleSuffixes []string, log *zap.Logger) *ThreadExtractor {
	if titleSuffixes == nil {
		titleSuffixes = DefaultTitleSuffixes
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ThreadExtractor{
		fetcher:       fetcher,
		resolver:      resolver,
		titleSuffixes: titleSuffixes,
		log:           log,
	}
}

// Extract fetches and parses one thread. It returns nil only when the
// page could not be fetched; missing titles and posts are not failures.
func (te *ThreadExtractor) Extract(threadURL string) *model.Thread {
	te.log.Info("Extracting content from thread", zap.String("url", threadURL))

	res := te.fetcher.Fetch(threadURL)
	if !res.Usable() {
		te.log.Error("Failed to fetch thread", zap.String("url", threadURL), zap.Error(res.Err))
		return nil
	}
	if !res.Success() {
		te.log.Warn("Parsing thread page despite error status",
			zap.String("url", threadURL),
			zap.Int("status", res.Status))
	}

	res.URL = threadURL
	doc, _, err := parseDocument(res)
	if err != nil {
		te.log.Error("Unparseable thread page", zap.String("url", threadURL), zap.Error(err))
		thread := model.NewThread(threadURL)
		return &thread
	}
	thread := te.Parse(doc, threadURL)
	return &thread
}

// Parse extracts the title and posts of an already loaded page.
func (te *ThreadExtractor) Parse(doc *goquery.Document, threadURL string) model.Thread {
	thread := model.NewThread(threadURL)
	thread.Title = te.title(doc)
	if thread.Title == nil {
		te.log.Warn("No title found", zap.String("url", threadURL))
	}

	containers := te.resolver.Resolve(doc.Selection, selector.PostContainer)
	if !containers.Found {
		te.log.Warn("No posts found in thread", zap.String("url", threadURL))
		return thread
	}
	te.log.Info("Found posts",
		zap.Int("count", containers.Selection.Length()),
		zap.String("strategy", containers.Strategy))

	containers.Selection.Each(func(_ int, container *goquery.Selection) {
		thread.Posts = append(thread.Posts, te.post(container))
	})
	return thread
}

func (te *ThreadExtractor) title(doc *goquery.Document) *string {
	if title, m := te.resolver.Text(doc.Selection, selector.ThreadTitle); m.Found {
		return model.Optional(title)
	}

	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())
	if pageTitle == "" {
		pageTitle = strings.TrimSpace(doc.Find("meta[property='og:title']").AttrOr("content", ""))
	}
	for _, suffix := range te.titleSuffixes {
		pageTitle = strings.TrimSuffix(pageTitle, suffix)
	}
	return model.Optional(pageTitle)
}

func (te *ThreadExtractor) post(container *goquery.Selection) model.Post {
	var post model.Post

	author, authorMatch := te.resolver.Text(container, selector.PostAuthor)
	if authorMatch.Found {
		post.Author = model.Optional(author)
	}
	date, dateMatch := te.resolver.Text(container, selector.PostDate)
	if dateMatch.Found {
		post.Date = model.Optional(date)
	}

	if m := te.resolver.Resolve(container, selector.PostContent); m.Found {
		post.Content = textWithBreaks(m.Selection.First())
		return post
	}

	// Without a content element use everything the container holds,
	// minus the author and date already captured.
	full := strings.Join(strings.Fields(container.Text()), " ")
	if post.Author != nil {
		full = strings.Replace(full, *post.Author, "", 1)
	}
	if post.Date != nil {
		full = strings.Replace(full, *post.Date, "", 1)
	}
	post.Content = strings.TrimSpace(full)
	return post
}
