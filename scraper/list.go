package scraper

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/selector"
	"github.com/zvonler/threadgrab/utils"
	"go.uber.org/zap"
)

// ListPage is what one listing page yields.
type ListPage struct {
	Topics []model.Topic
	Next   *url.URL
}

type ListExtractor struct {
	resolver  *selector.Resolver
	separator string
	log       *zap.Logger
}

func NewListExtractor(resolver *selector.Resolver, separator string, log *zap.Logger) *ListExtractor {
	if separator == "" {
		separator = DefaultSeparator
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ListExtractor{resolver: resolver, separator: separator, log: log}
}

func (le *ListExtractor) Parse(doc *goquery.Document, pageURL *url.URL) ListPage {
	page := ListPage{Topics: make([]model.Topic, 0)}

	items := le.resolver.Resolve(doc.Selection, selector.ListingItem)
	if items.Found {
		le.log.Info("Found threads",
			zap.Int("count", items.Selection.Length()),
			zap.String("strategy", items.Strategy),
			zap.Stringer("url", pageURL))
	} else {
		le.log.Warn("No threads found with any selector", zap.Stringer("url", pageURL))
	}

	items.Selection.Each(func(_ int, item *goquery.Selection) {
		if topic, ok := le.topic(item, pageURL); ok {
			page.Topics = append(page.Topics, topic)
		}
	})

	if m := le.resolver.Resolve(doc.Selection, selector.NextPageLink); m.Found {
		m.Selection.EachWithBreak(func(_ int, link *goquery.Selection) bool {
			page.Next = utils.AbsoluteURL(pageURL, link.AttrOr("href", ""))
			return page.Next == nil
		})
	}
	return page
}

func (le *ListExtractor) topic(item *goquery.Selection, pageURL *url.URL) (model.Topic, bool) {
	title := strings.Join(strings.Fields(item.Text()), " ")

	href, ok := item.Attr("href")
	if !ok {
		href = item.Find("a[href]").First().AttrOr("href", "")
	}
	if href == "" {
		href = item.Closest("a[href]").AttrOr("href", "")
	}

	link := utils.AbsoluteURL(pageURL, href)
	if title == "" || link == nil {
		le.log.Debug("Skipping listing item without title or link",
			zap.String("title", title),
			zap.String("href", href))
		return model.Topic{}, false
	}

	topic := model.Topic{Title: title, URL: link.String()}
	if id := item.AttrOr("data-topic-id", ""); id != "" {
		topic.ID = model.Optional(id)
	} else {
		topic.ID = model.Optional(ThreadID(topic.URL, le.separator))
	}

	// Author and date usually sit beside the title, so look from the parent
	scope := item.Parent()
	if author, m := le.resolver.Text(scope, selector.TopicAuthor); m.Found {
		topic.Author = model.Optional(author)
	}
	if date, m := le.resolver.Text(scope, selector.TopicDate); m.Found {
		topic.Date = model.Optional(date)
	}
	return topic, true
}
