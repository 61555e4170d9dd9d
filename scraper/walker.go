package scraper

import (
	"fmt"
	"net/url"
	"time"

	"github.com/zvonler/threadgrab/fetch"
	"github.com/zvonler/threadgrab/model"
	"go.uber.org/zap"
)

type WalkState int

const (
	HasPage WalkState = iota
	NoMore
	Error
)

func (s WalkState) String() string {
	switch s {
	case HasPage:
		return "has-page"
	case NoMore:
		return "no-more"
	case Error:
		return "error"
	}
	return "unknown"
}

// WalkResult holds the topics gathered by a walk. Err is set when the walk
// stopped in the Error state; Topics still holds what was found before.
type WalkResult struct {
	Topics []model.Topic
	Pages  []string
	State  WalkState
	Err    error
}

type Walker struct {
	fetcher   fetch.Fetcher
	extractor *ListExtractor
	maxPages  int
	delay     time.Duration
	log       *zap.Logger

	// Sleep waits out the delay between page transitions.
	Sleep func(time.Duration)
}

func NewWalker(fetcher fetch.Fetcher, extractor *ListExtractor, maxPages int, delay time.Duration, log *zap.Logger) *Walker {
	if maxPages < 1 {
		maxPages = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Walker{
		fetcher:   fetcher,
		extractor: extractor,
		maxPages:  maxPages,
		delay:     delay,
		log:       log,
		Sleep:     time.Sleep,
	}
}

// Walk follows next-page links from seed until there is no next link, the
// next link was already visited, the page bound is reached or a fetch fails.
func (w *Walker) Walk(seed string) WalkResult {
	result := WalkResult{Topics: make([]model.Topic, 0), State: HasPage}

	current, err := url.Parse(seed)
	if err != nil || !current.IsAbs() {
		result.State = Error
		result.Err = fmt.Errorf("%w: invalid seed url %q", model.ErrInput, seed)
		return result
	}
	current.Fragment = ""

	seenPages := make(map[string]bool)
	seenTopics := make(map[string]bool)

	for result.State == HasPage {
		pageURL := current.String()
		seenPages[pageURL] = true
		result.Pages = append(result.Pages, pageURL)

		w.log.Info("Fetching listing page",
			zap.Int("page", len(result.Pages)),
			zap.String("url", pageURL))

		res := w.fetcher.Fetch(pageURL)
		if !res.Usable() {
			result.State = Error
			result.Err = res.Err
			w.log.Error("Listing page fetch failed, stopping",
				zap.String("url", pageURL),
				zap.Int("topics", len(result.Topics)),
				zap.Error(res.Err))
			break
		}

		res.URL = pageURL
		doc, _, err := parseDocument(res)
		if err != nil {
			result.State = Error
			result.Err = err
			break
		}

		page := w.extractor.Parse(doc, current)
		for _, topic := range page.Topics {
			if seenTopics[topic.URL] {
				continue
			}
			seenTopics[topic.URL] = true
			result.Topics = append(result.Topics, topic)
		}

		switch {
		case page.Next == nil:
			w.log.Debug("No next page link", zap.String("url", pageURL))
			result.State = NoMore
		case seenPages[page.Next.String()]:
			w.log.Warn("Next page link already visited", zap.Stringer("next", page.Next))
			result.State = NoMore
		case len(result.Pages) >= w.maxPages:
			w.log.Info("Reached page limit", zap.Int("pages", w.maxPages))
			result.State = NoMore
		default:
			current = page.Next
			if w.delay > 0 {
				w.Sleep(w.delay)
			}
		}
	}

	w.log.Info("Listing walk finished",
		zap.Stringer("state", result.State),
		zap.Int("pages", len(result.Pages)),
		zap.Int("topics", len(result.Topics)))
	return result
}
