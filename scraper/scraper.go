// Package scraper turns fetched listing and thread pages into model
// records. Every field is resolved independently through a selector
// Resolver so a markup change degrades single fields, not whole pages.
package scraper

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/utils"
	"golang.org/x/net/html"
)

// DefaultSeparator is the path segment between a group URL and a thread id.
const DefaultSeparator = "/c/"

func parseDocument(res model.FetchResult) (*goquery.Document, *url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, nil, err
	}
	pageURL, err := url.Parse(res.URL)
	if err != nil {
		return nil, nil, err
	}
	doc.Url = pageURL
	return doc, pageURL, nil
}

// ThreadID returns the path segment following separator, or "".
func ThreadID(threadURL, separator string) string {
	if separator == "" {
		separator = DefaultSeparator
	}
	idx := strings.Index(threadURL, separator)
	if idx < 0 {
		return ""
	}
	rest := threadURL[idx+len(separator):]
	if cut := strings.IndexAny(rest, "/?#"); cut >= 0 {
		rest = rest[:cut]
	}
	return rest
}

var blockElements = map[string]bool{
	"address": true, "article": true, "blockquote": true, "dd": true, "div": true,
	"dl": true, "dt": true, "fieldset": true, "figure": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true, "tr": true,
	"ul": true,
}

// textWithBreaks collects the text below sel, turning <br> and block
// boundaries into line breaks, then collapses blank lines.
func textWithBreaks(sel *goquery.Selection) string {
	var b strings.Builder
	var collectText func(*html.Node)
	collectText = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "br":
				b.WriteByte('\n')
				return
			}
			if blockElements[n.Data] {
				b.WriteByte('\n')
				defer b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collectText(c)
		}
	}
	for _, n := range sel.Nodes {
		collectText(n)
	}
	return utils.CollapseLines(b.String())
}
