package selector

import (
	"fmt"
	"os"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v2"
)

func s(name, sel string) Strategy {
	return Strategy{Name: name, Selector: sel}
}

// Defaults returns the Google Groups selectors, oldest markup first. The
// class names are site-specific and change without notice, which is why
// LoadFile exists.
func Defaults() Set {
	return Set{
		ListingItem: {
			s("thread-subject", ".thread-subject"),
			s("topic-id-link", "a[data-topic-id]"),
			s("thread-header-link", ".thread-header a"),
			s("thread-title-link", "a.thread-title"),
			s("topic-row", "div.jXigdo"),
			s("topic-heading", "h3.Ds0dsb"),
			s("conversation-link", "a[href*='/c/']"),
		},
		TopicAuthor: {
			s("author-class", ".author"),
			s("author-role", "span[role='author']"),
			s("author-obfuscated", ".bZI0O"),
		},
		TopicDate: {
			s("date-class", ".date"),
			s("date-role", "span[role='date']"),
			s("date-obfuscated", ".wJMDsd"),
		},
		NextPageLink: {
			s("next-page-class", "a.next-page-link"),
			s("next-page-aria", "a[aria-label='Next page']"),
			s("next-page-obfuscated", "a.ZIKj2d"),
			s("rel-next", "a[rel='next']"),
		},
		ThreadTitle: {
			s("h1-thread-title", "h1.thread-title"),
			s("h2-thread-title", "h2.thread-title"),
			s("h1-obfuscated", "h1.iUvsJ"),
			s("h2-obfuscated", "h2.iUvsJ"),
		},
		PostContainer: {
			s("post", "div.post"),
			s("message", "div.message"),
			s("post-obfuscated", "div.EGkKVb"),
			s("post-obfuscated-alt", "div.z7U2we"),
			s("article-role", "div[role='article']"),
		},
		PostAuthor: {
			s("author-class", ".author"),
			s("author-role", "span[role='author']"),
			s("author-obfuscated", ".UXbBWb"),
			s("author-obfuscated-alt", ".PBuZLb"),
		},
		PostDate: {
			s("date-class", ".date"),
			s("date-role", "span[role='date']"),
			s("date-obfuscated", ".ZRWfre"),
			s("date-obfuscated-alt", ".nMTYKd"),
		},
		PostContent: {
			s("content-class", ".content"),
			s("message-body", ".message-body"),
			s("content-obfuscated", ".tlFcqe"),
			s("content-obfuscated-alt", ".Xs9Rsd"),
		},
	}
}

// LoadFile reads a YAML document of the form
//
//	post-container:
//	  - name: post
//	    selector: div.post
//
// and overlays the roles it names onto Defaults. Roles absent from the
// file keep their default strategies.
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (Set, error) {
	var overlay map[string][]Strategy
	if err := yaml.UnmarshalStrict(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse selectors: %w", err)
	}

	known := make(map[Role]bool, len(Roles))
	for _, role := range Roles {
		known[role] = true
	}

	set := Defaults()
	for name, strategies := range overlay {
		role := Role(name)
		if !known[role] {
			return nil, fmt.Errorf("unknown selector role %q", name)
		}
		for _, strategy := range strategies {
			if _, err := cascadia.Compile(strategy.Selector); err != nil {
				return nil, fmt.Errorf("role %s strategy %q: %w", role, strategy.label(), err)
			}
		}
		set[role] = strategies
	}
	return set, nil
}
