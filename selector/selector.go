// Package selector resolves pieces of a parsed page by trying an ordered
// list of strategies per data role until one matches.
package selector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

type Role string

const (
	ListingItem   Role = "listing-item"
	TopicAuthor   Role = "topic-author"
	TopicDate     Role = "topic-date"
	NextPageLink  Role = "next-page-link"
	ThreadTitle   Role = "thread-title"
	PostContainer Role = "post-container"
	PostAuthor    Role = "post-author"
	PostDate      Role = "post-date"
	PostContent   Role = "post-content"
)

var Roles = []Role{
	ListingItem, TopicAuthor, TopicDate, NextPageLink, ThreadTitle,
	PostContainer, PostAuthor, PostDate, PostContent,
}

// Strategy is a named rule for locating one piece of data.
type Strategy struct {
	Name     string `yaml:"name"`
	Selector string `yaml:"selector"`
}

func (s Strategy) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Selector
}

// Set maps each role to its strategies in evaluation order.
type Set map[Role][]Strategy

// Match is the outcome of resolving a role. Found is false when every
// strategy came up empty; Selection is then an empty selection.
type Match struct {
	Selection *goquery.Selection
	Strategy  string
	Found     bool
}

type Resolver struct {
	set Set
	log *zap.Logger
}

func NewResolver(set Set, log *zap.Logger) *Resolver {
	if set == nil {
		set = Defaults()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{set: set, log: log}
}

func (r *Resolver) Strategies(role Role) []Strategy {
	return r.set[role]
}

// Resolve returns every element matched by the first strategy that
// matches anything below root.
func (r *Resolver) Resolve(root *goquery.Selection, role Role) Match {
	return r.resolve(root, role, func(sel *goquery.Selection) bool {
		return sel.Length() > 0
	})
}

// Text returns the trimmed text of the first element matched by the first
// strategy that yields non-blank text.
func (r *Resolver) Text(root *goquery.Selection, role Role) (string, Match) {
	m := r.resolve(root, role, func(sel *goquery.Selection) bool {
		return strings.TrimSpace(sel.First().Text()) != ""
	})
	if !m.Found {
		return "", m
	}
	return strings.TrimSpace(m.Selection.First().Text()), m
}

func (r *Resolver) resolve(root *goquery.Selection, role Role, accept func(*goquery.Selection) bool) Match {
	if root == nil {
		return Match{Selection: &goquery.Selection{}}
	}
	for _, strategy := range r.set[role] {
		sel := root.Find(strategy.Selector)
		if accept(sel) {
			r.log.Debug("Selector resolved",
				zap.String("role", string(role)),
				zap.String("strategy", strategy.label()),
				zap.Int("matches", sel.Length()))
			return Match{Selection: sel, Strategy: strategy.label(), Found: true}
		}
	}
	r.log.Debug("Selector not found", zap.String("role", string(role)))
	return Match{Selection: root.Slice(0, 0)}
}
