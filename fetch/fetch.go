// Package fetch performs single page fetches with bounded exponential
// backoff. A fetch never panics or aborts its caller; exhausted retries
// come back as a failed FetchResult.
package fetch

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/caffix/cloudflare-roundtripper/cfrt"
	"github.com/gocolly/colly"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/session"
	"go.uber.org/zap"
)

type Options struct {
	// Retries is the number of retries after the first attempt.
	Retries   int
	BaseDelay time.Duration
	Timeout   time.Duration
	// Cloudflare wraps the transport with the Cloudflare challenge solver.
	Cloudflare bool
}

func DefaultOptions() Options {
	return Options{
		Retries:    3,
		BaseDelay:  time.Second,
		Timeout:    30 * time.Second,
		Cloudflare: true,
	}
}

// Fetcher is what the extractors need from an Engine.
type Fetcher interface {
	Fetch(url string) model.FetchResult
}

type Engine struct {
	collector *colly.Collector
	session   *session.Manager
	opts      Options
	log       *zap.Logger
	current   *model.FetchResult

	// Sleep waits out the backoff delay between attempts.
	Sleep func(time.Duration)
}

// NewEngine builds an engine fetching through sess, which is required.
func NewEngine(sess *session.Manager, opts Options, log *zap.Logger) (*Engine, error) {
	if sess == nil {
		return nil, fmt.Errorf("%w: fetch engine needs a session", model.ErrInput)
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		session: sess,
		opts:    opts,
		log:     log,
		Sleep:   time.Sleep,
	}

	collector, err := e.newCollector()
	if err != nil {
		return nil, err
	}
	e.collector = collector
	return e, nil
}

func (e *Engine) newCollector() (*colly.Collector, error) {
	headers := e.session.Headers()

	collector := colly.NewCollector(
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
		colly.UserAgent(headers.Get("User-Agent")),
	)

	var transport http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: e.opts.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if e.opts.Cloudflare {
		cf, err := cfrt.New(transport)
		if err != nil {
			return nil, fmt.Errorf("cloudflare transport: %w", err)
		}
		transport = cf
	}
	collector.WithTransport(transport)
	collector.SetRequestTimeout(e.opts.Timeout)
	collector.SetCookieJar(e.session.Jar())
	if err := collector.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1}); err != nil {
		return nil, err
	}

	collector.OnRequest(func(r *colly.Request) {
		for name := range headers {
			r.Headers.Set(name, headers.Get(name))
		}
		e.log.Debug("Fetching", zap.String("url", r.URL.String()))
	})

	collector.OnResponse(func(r *colly.Response) {
		e.record(r, nil)
	})

	collector.OnError(func(r *colly.Response, err error) {
		e.record(r, err)
	})

	return collector, nil
}

func (e *Engine) record(r *colly.Response, err error) {
	if e.current == nil {
		return
	}
	e.current.Status = r.StatusCode
	e.current.Body = r.Body
	e.current.Err = err
	if r.Request != nil && r.Request.URL != nil {
		e.current.URL = r.Request.URL.String()
	}
}

// Fetch retries network errors and retryable statuses up to Retries times,
// waiting BaseDelay * 2^k before retry k. Other statuses are returned with
// their body and a nil Err so the page can still be parsed.
func (e *Engine) Fetch(url string) model.FetchResult {
	var res model.FetchResult
	for attempt := 0; ; attempt++ {
		res = e.attempt(url)
		res.Attempts = attempt + 1

		if !Retryable(res) {
			res.Err = nil
			break
		}
		if attempt >= e.opts.Retries {
			res.Err = fmt.Errorf("%w: %s after %d attempts: %v", model.ErrTransientFetch, url, res.Attempts, cause(res))
			e.log.Error("Max retries reached, giving up",
				zap.String("url", url),
				zap.Int("attempts", res.Attempts),
				zap.Error(res.Err))
			break
		}

		delay := e.opts.BaseDelay << attempt
		e.log.Warn("Request failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", res.Attempts),
			zap.Int("status", res.Status),
			zap.Duration("delay", delay),
			zap.NamedError("cause", cause(res)))
		e.Sleep(delay)
	}

	e.session.Observe(res)
	return res
}

func (e *Engine) attempt(url string) model.FetchResult {
	res := model.FetchResult{URL: url}
	e.current = &res
	err := e.collector.Visit(url)
	e.current = nil

	if err != nil && res.Status == 0 && res.Err == nil {
		// Rejected before any request went out
		res.Err = err
	}
	return res
}

// Retryable reports whether an attempt failed in a way worth repeating:
// no response at all, or a throttling/server-side status.
func Retryable(res model.FetchResult) bool {
	if res.Status == 0 {
		return true
	}
	switch res.Status {
	case http.StatusRequestTimeout,
		http.StatusTooEarly,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func cause(res model.FetchResult) error {
	if res.Err != nil {
		return res.Err
	}
	return fmt.Errorf("status %d", res.Status)
}
