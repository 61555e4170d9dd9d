package model

import (
	"net/http"
	"strings"
)

// Topic is one entry of a listing page. URL is always absolute.
type Topic struct {
	ID     *string `json:"id,omitempty"`
	Title  string  `json:"title"`
	Author *string `json:"author,omitempty"`
	Date   *string `json:"date,omitempty"`
	URL    string  `json:"url"`
}

type Post struct {
	Author  *string `json:"author,omitempty"`
	Date    *string `json:"date,omitempty"`
	Content string  `json:"content"`
}

// Thread is the persisted record of one discussion. Posts keep document
// order and marshal as an empty array, never null.
type Thread struct {
	URL   string  `json:"url"`
	Title *string `json:"title"`
	Posts []Post  `json:"posts"`
}

func NewThread(url string) Thread {
	return Thread{URL: url, Posts: make([]Post, 0)}
}

func (t Thread) TitleOr(fallback string) string {
	if t.Title == nil {
		return fallback
	}
	return *t.Title
}

// Group is a forum collection, identified by the URL prefix that precedes
// the thread separator of its thread URLs.
type Group struct {
	OriginURL string
	Threads   []string
}

type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
}

type Summary struct {
	ThreadCount int      `json:"thread_count"`
	Threads     []Thread `json:"threads"`
}

func NewSummary(threads []Thread) Summary {
	if threads == nil {
		threads = make([]Thread, 0)
	}
	return Summary{ThreadCount: len(threads), Threads: threads}
}

// GroupScrape is the record of one listing run, with thread contents when
// they were requested.
type GroupScrape struct {
	GroupURL       string   `json:"group_url"`
	Threads        []Topic  `json:"threads"`
	ThreadContents []Thread `json:"thread_contents,omitempty"`
}

// FetchResult is the outcome of one retryable fetch. Err is set only when
// no usable body was obtained; a non-retryable error status still carries
// its body.
type FetchResult struct {
	URL      string
	Status   int
	Body     []byte
	Attempts int
	Err      error
}

func (r FetchResult) Usable() bool {
	return r.Err == nil && r.Body != nil
}

func (r FetchResult) Success() bool {
	return r.Err == nil && r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}

// Optional returns nil for blank strings so absent fields are omitted.
func Optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
