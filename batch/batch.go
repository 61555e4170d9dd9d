// Package batch extracts many threads, grouped by the forum group they
// belong to so each group is authenticated once.
package batch

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/zvonler/threadgrab/fetch"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/output"
	"github.com/zvonler/threadgrab/scraper"
	"github.com/zvonler/threadgrab/selector"
	"github.com/zvonler/threadgrab/session"
	"github.com/zvonler/threadgrab/utils"
	"go.uber.org/zap"
)

const DefaultDelay = 3 * time.Second

// ReadURLList reads one absolute URL per line. Blank lines are skipped
// silently; any other line without an http(s) scheme is skipped with a
// warning.
func ReadURLList(path string, log *zap.Logger) ([]string, error) {
	if log == nil {
		log = zap.NewNop()
	}

	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInput, err)
	}
	defer fd.Close()

	var urls []string
	scanner := bufio.NewScanner(fd)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if u, err := url.Parse(line); err != nil || !utils.HasHTTPScheme(line) || u.Host == "" {
			log.Warn("Ignoring line without a URL",
				zap.String("file", path),
				zap.Int("line", lineNo),
				zap.String("text", line))
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", model.ErrInput, path, err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no valid thread URLs in %s", model.ErrInput, path)
	}

	log.Info("Read thread URLs", zap.String("file", path), zap.Int("count", len(urls)))
	return urls, nil
}

// GroupOrigin returns the prefix of threadURL preceding separator, or ""
// when threadURL has no thread id after the separator.
func GroupOrigin(threadURL, separator string) string {
	if separator == "" {
		separator = scraper.DefaultSeparator
	}
	idx := strings.Index(threadURL, separator)
	if idx <= 0 || scraper.ThreadID(threadURL, separator) == "" {
		return ""
	}
	return threadURL[:idx]
}

// GroupURLs groups thread URLs by origin, keeping first-seen order of both
// groups and threads. URLs that have no origin or do not match pattern
// are returned as skipped.
func GroupURLs(urls []string, separator string, pattern *regexp.Regexp, log *zap.Logger) (groups []model.Group, skipped []string) {
	if log == nil {
		log = zap.NewNop()
	}

	index := make(map[string]int)
	seen := make(map[string]bool)
	for _, u := range urls {
		origin := GroupOrigin(u, separator)
		if origin == "" || (pattern != nil && !pattern.MatchString(u)) {
			log.Warn("Invalid thread URL format, skipping", zap.String("url", u))
			skipped = append(skipped, u)
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true

		i, ok := index[origin]
		if !ok {
			i = len(groups)
			index[origin] = i
			groups = append(groups, model.Group{OriginURL: origin})
		}
		groups[i].Threads = append(groups[i].Threads, u)
	}
	return
}

type Options struct {
	Separator string
	// Pattern, when set, must match every thread URL.
	Pattern *regexp.Regexp
	Delay   time.Duration
	// CookieFile applies to every group without an entry in GroupCookies.
	CookieFile   string
	GroupCookies map[string]string
	Summary      bool
	Session      session.Options
	Fetch        fetch.Options
}

// Report tallies a run. Errors holds every group or thread level failure.
type Report struct {
	Groups        int
	GroupsSkipped int
	Persisted     int
	Failed        int
	URLsSkipped   int
	Errors        []error
	Summary       *model.Summary
}

func (r *Report) fail(err error) {
	r.Errors = append(r.Errors, err)
}

// Succeeded reports whether at least one thread was persisted.
func (r Report) Succeeded() bool {
	return r.Persisted > 0
}

type Orchestrator struct {
	opts     Options
	resolver *selector.Resolver
	sink     output.Sink
	log      *zap.Logger

	// Sleep waits out the politeness delay between threads.
	Sleep func(time.Duration)
}

func NewOrchestrator(opts Options, resolver *selector.Resolver, sink output.Sink, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if resolver == nil {
		resolver = selector.NewResolver(nil, log)
	}
	return &Orchestrator{
		opts:     opts,
		resolver: resolver,
		sink:     sink,
		log:      log,
		Sleep:    time.Sleep,
	}
}

// Run extracts every thread in urls, one group at a time and one thread at
// a time. Only an empty set of valid URLs is an error; everything else is
// reported.
func (o *Orchestrator) Run(urls []string) (Report, error) {
	var report Report

	groups, skipped := GroupURLs(urls, o.opts.Separator, o.opts.Pattern, o.log)
	report.URLsSkipped = len(skipped)
	if len(groups) == 0 {
		return report, fmt.Errorf("%w: none of %d URLs is a thread URL", model.ErrInput, len(urls))
	}

	var threads []model.Thread
	for _, group := range groups {
		report.Groups++
		extracted, err := o.runGroup(group, &report)
		if err != nil {
			report.GroupsSkipped++
			report.fail(err)
			o.log.Error("Skipping group", zap.String("group", group.OriginURL), zap.Error(err))
		}
		threads = append(threads, extracted...)
	}

	if o.opts.Summary {
		summary := model.NewSummary(threads)
		report.Summary = &summary
	}

	o.log.Info("Batch extraction complete",
		zap.Int("groups", report.Groups),
		zap.Int("groups_skipped", report.GroupsSkipped),
		zap.Int("persisted", report.Persisted),
		zap.Int("failed", report.Failed),
		zap.Int("urls_skipped", report.URLsSkipped))
	return report, nil
}

func (o *Orchestrator) cookieFile(origin string) string {
	if path, ok := o.opts.GroupCookies[origin]; ok {
		return path
	}
	return o.opts.CookieFile
}

// runGroup returns the threads it extracted when summaries are requested.
// A non-nil error means the rest of the group was skipped.
func (o *Orchestrator) runGroup(group model.Group, report *Report) ([]model.Thread, error) {
	log := o.log.With(zap.String("group", group.OriginURL))
	log.Info("Processing group", zap.Int("threads", len(group.Threads)))

	sess, err := session.NewManager(o.opts.Session, log)
	if err != nil {
		return nil, err
	}
	if path := o.cookieFile(group.OriginURL); path != "" {
		cookies, err := session.LoadCookieFile(path, session.CookieDomain(group.OriginURL))
		if err != nil {
			return nil, err
		}
		sess.SetAuth(cookies)
	}

	engine, err := fetch.NewEngine(sess, o.opts.Fetch, log)
	if err != nil {
		return nil, err
	}
	extractor := scraper.NewThreadExtractor(engine, o.resolver, nil, log)

	var extracted []model.Thread
	for i, threadURL := range group.Threads {
		if i > 0 && o.opts.Delay > 0 {
			log.Debug("Waiting before next request", zap.Duration("delay", o.opts.Delay))
			o.Sleep(o.opts.Delay)
		}
		log.Info("Processing thread",
			zap.Int("index", i+1),
			zap.Int("of", len(group.Threads)),
			zap.String("url", threadURL))

		thread := extractor.Extract(threadURL)

		// The session latches on the first decisive response, which need
		// not be the first thread.
		if sess.State() == session.AuthRejected {
			report.Failed += len(group.Threads) - i
			return extracted, fmt.Errorf("%w: access to %s rejected", model.ErrAuth, group.OriginURL)
		}

		if thread == nil {
			report.Failed++
			report.fail(fmt.Errorf("%w: %s", model.ErrTransientFetch, threadURL))
			continue
		}
		log.Info("Successfully extracted",
			zap.String("title", thread.TitleOr("")),
			zap.Int("posts", len(thread.Posts)))

		if err := o.sink.Persist(group.OriginURL, *thread); err != nil {
			report.Failed++
			report.fail(err)
			log.Error("Failed to save thread", zap.String("url", threadURL), zap.Error(err))
			continue
		}
		report.Persisted++
		if o.opts.Summary {
			extracted = append(extracted, *thread)
		}
	}
	return extracted, nil
}
