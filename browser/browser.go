// Package browser drives a real Chrome instance for listings that only
// render with JavaScript and for interactive logins. It drives one tab at
// a time and every wait is bounded.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/scraper"
	"github.com/zvonler/threadgrab/selector"
	"github.com/zvonler/threadgrab/session"
	"github.com/zvonler/threadgrab/utils"
	"go.uber.org/zap"
)

type WaitResult int

const (
	Found WaitResult = iota
	TimedOut
)

func (r WaitResult) String() string {
	if r == Found {
		return "found"
	}
	return "timed-out"
}

const noAccessText = "You don't have permission to access this content"

type Options struct {
	Headless  bool
	UserAgent string
	// WaitTimeout bounds the wait for each selector strategy.
	WaitTimeout     time.Duration
	NavigateTimeout time.Duration
	// LoginTimeout bounds an interactive login, including manual steps.
	LoginTimeout time.Duration
	Email        string
	Password     string

	GroupBaseURL  string
	LoginURL      string
	AccountURL    string
	LoggedInMatch string
	LoginPatterns []string
}

func DefaultOptions() Options {
	return Options{
		Headless:        true,
		UserAgent:       session.DefaultUserAgent,
		WaitTimeout:     3 * time.Second,
		NavigateTimeout: 30 * time.Second,
		LoginTimeout:    5 * time.Minute,
		GroupBaseURL:    "https://groups.google.com/g/",
		LoginURL:        "https://accounts.google.com/signin",
		AccountURL:      "https://accounts.google.com/",
		LoggedInMatch:   "myaccount.google.com",
		LoginPatterns:   session.DefaultOptions().LoginPatterns,
	}
}

type Driver struct {
	opts     Options
	resolver *selector.Resolver
	list     *scraper.ListExtractor
	thread   *scraper.ThreadExtractor
	store    *CookieStore
	log      *zap.Logger

	ctx    context.Context
	cancel []context.CancelFunc
}

func NewDriver(opts Options, resolver *selector.Resolver, store *CookieStore, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	if resolver == nil {
		resolver = selector.NewResolver(nil, log)
	}
	return &Driver{
		opts:     opts,
		resolver: resolver,
		list:     scraper.NewListExtractor(resolver, "", log),
		thread:   scraper.NewThreadExtractor(nil, resolver, nil, log),
		store:    store,
		log:      log,
	}
}

func (d *Driver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(1280, 900),
	}
	if d.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(d.opts.UserAgent))
	}
	return opts
}

func (d *Driver) Start() error {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	ctx, ctxCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.log.Sugar().Debugf),
		chromedp.WithErrorf(d.log.Sugar().Debugf))
	d.cancel = []context.CancelFunc{ctxCancel, allocCancel}

	// The first Run launches the browser
	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		d.Close()
		return fmt.Errorf("starting browser: %w", err)
	}
	d.ctx = ctx
	d.log.Info("Browser started", zap.Bool("headless", d.opts.Headless))
	return nil
}

func (d *Driver) Close() {
	for _, cancel := range d.cancel {
		cancel()
	}
	d.cancel = nil
	d.ctx = nil
}

func (d *Driver) run(timeout time.Duration, actions ...chromedp.Action) error {
	if d.ctx == nil {
		return errors.New("browser not started")
	}
	ctx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (d *Driver) Navigate(target string) error {
	d.log.Info("Navigating", zap.String("url", target))
	return d.run(d.opts.NavigateTimeout, chromedp.Navigate(target))
}

func (d *Driver) Location() (string, error) {
	var loc string
	err := d.run(d.opts.NavigateTimeout, chromedp.Location(&loc))
	return loc, err
}

// WaitVisible waits up to timeout for sel to become visible. Running out
// of time is a TimedOut result, not an error.
func (d *Driver) WaitVisible(sel string, timeout time.Duration) (WaitResult, error) {
	err := d.run(timeout, chromedp.WaitVisible(sel, chromedp.ByQuery))
	switch {
	case err == nil:
		return Found, nil
	case errors.Is(err, context.DeadlineExceeded):
		d.log.Debug("Selector not visible in time", zap.String("selector", sel), zap.Duration("timeout", timeout))
		return TimedOut, nil
	}
	return TimedOut, err
}

// WaitURL polls the current location until pred accepts it or timeout
// passes.
func (d *Driver) WaitURL(pred func(string) bool, timeout time.Duration) (WaitResult, error) {
	deadline := time.Now().Add(timeout)
	for {
		loc, err := d.Location()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return TimedOut, err
		}
		if err == nil && pred(loc) {
			return Found, nil
		}
		if time.Now().After(deadline) {
			return TimedOut, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func (d *Driver) isLoginURL(u string) bool {
	for _, pattern := range d.opts.LoginPatterns {
		if pattern != "" && strings.Contains(u, pattern) {
			return true
		}
	}
	return false
}

// Login restores a fresh stored session when it still works and falls back
// to the interactive flow otherwise. Cookies of a successful interactive
// login are written back to the store.
func (d *Driver) Login() error {
	if d.store != nil {
		if stored, fresh := d.store.LoadFresh(); fresh {
			if ok, err := d.restore(stored); err != nil {
				d.log.Warn("Could not restore stored cookies", zap.Error(err))
			} else if ok {
				d.log.Info("Already logged in from stored cookies", zap.String("path", d.store.Path))
				return nil
			}
		} else {
			d.log.Info("No fresh stored cookies, logging in interactively", zap.String("path", d.store.Path))
		}
	}

	if err := d.interactiveLogin(); err != nil {
		return err
	}
	d.log.Info("Login successful")

	if d.store == nil {
		return nil
	}
	var cookies []*network.Cookie
	err := d.run(d.opts.NavigateTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("%w: reading browser cookies: %v", model.ErrAuth, err)
	}
	if err := d.store.Save(storedCookies(cookies)); err != nil {
		d.log.Error("Failed to save cookies", zap.Error(err))
		return nil
	}
	d.log.Info("Cookies saved", zap.String("path", d.store.Path), zap.Int("count", len(cookies)))
	return nil
}

func (d *Driver) restore(stored StoredSession) (bool, error) {
	err := d.run(d.opts.NavigateTimeout, network.SetCookies(stored.params()))
	if err != nil {
		return false, err
	}
	if err := d.Navigate(d.opts.AccountURL); err != nil {
		return false, err
	}
	loc, err := d.Location()
	if err != nil {
		return false, err
	}
	return !d.isLoginURL(loc), nil
}

func (d *Driver) interactiveLogin() error {
	if err := d.Navigate(d.opts.LoginURL); err != nil {
		return fmt.Errorf("%w: %v", model.ErrAuth, err)
	}

	if d.opts.Email == "" || d.opts.Password == "" {
		d.log.Warn("No email/password provided, waiting for manual login",
			zap.Duration("timeout", d.opts.LoginTimeout))
	}

	if d.opts.Email != "" {
		if err := d.fillAndSubmit(`input[type="email"]`, d.opts.Email, `#identifierNext button`); err != nil {
			d.log.Info("Login flow needs manual intervention", zap.Error(err))
		} else if res, _ := d.WaitVisible(`input[type="password"]`, 5*time.Second); res == Found && d.opts.Password != "" {
			if err := d.fillAndSubmit(`input[type="password"]`, d.opts.Password, `#passwordNext button`); err != nil {
				d.log.Info("Login flow needs manual intervention", zap.Error(err))
			}
		}
	}

	res, err := d.WaitURL(func(u string) bool {
		return strings.Contains(u, d.opts.LoggedInMatch)
	}, d.opts.LoginTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrAuth, err)
	}
	if res == TimedOut {
		return fmt.Errorf("%w: login not completed within %s", model.ErrAuth, d.opts.LoginTimeout)
	}
	return nil
}

func (d *Driver) fillAndSubmit(field, value, button string) error {
	if res, err := d.WaitVisible(field, d.opts.WaitTimeout); err != nil {
		return err
	} else if res == TimedOut {
		return fmt.Errorf("%s not found", field)
	}
	return d.run(d.opts.NavigateTimeout,
		chromedp.SendKeys(field, value, chromedp.ByQuery),
		chromedp.Click(button, chromedp.ByQuery))
}

// GroupURL accepts either a full group URL or a bare group name.
func (d *Driver) GroupURL(group string) string {
	if utils.HasHTTPScheme(group) {
		return group
	}
	return d.opts.GroupBaseURL + url.PathEscape(group)
}

// waitForRole waits for the first strategy of role that becomes visible.
func (d *Driver) waitForRole(role selector.Role) (selector.Strategy, WaitResult) {
	for _, strategy := range d.resolver.Strategies(role) {
		res, err := d.WaitVisible(strategy.Selector, d.opts.WaitTimeout)
		if err != nil {
			d.log.Warn("Wait failed", zap.String("selector", strategy.Selector), zap.Error(err))
			continue
		}
		if res == Found {
			d.log.Info("Found elements", zap.String("role", string(role)), zap.String("strategy", strategy.Name))
			return strategy, Found
		}
	}
	return selector.Strategy{}, TimedOut
}

func (d *Driver) document() (*goquery.Document, *url.URL, error) {
	var html, loc string
	err := d.run(d.opts.NavigateTimeout,
		chromedp.Location(&loc),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, err
	}
	pageURL, err := url.Parse(loc)
	if err != nil {
		return nil, nil, err
	}
	doc.Url = pageURL
	return doc, pageURL, nil
}

// Topics lists up to max topics of a group. A listing that never renders
// yields no topics rather than an error.
func (d *Driver) Topics(group string, max int) ([]model.Topic, error) {
	topics := make([]model.Topic, 0)

	groupURL := d.GroupURL(group)
	if err := d.Navigate(groupURL); err != nil {
		return topics, err
	}
	if loc, err := d.Location(); err == nil && d.isLoginURL(loc) {
		return topics, fmt.Errorf("%w: login required to access %s", model.ErrAuth, groupURL)
	}

	if _, res := d.waitForRole(selector.ListingItem); res == TimedOut {
		d.log.Error("Couldn't find any topics on the page", zap.String("url", groupURL))
		return topics, nil
	}

	doc, pageURL, err := d.document()
	if err != nil {
		return topics, err
	}
	if strings.Contains(doc.Text(), noAccessText) {
		return topics, fmt.Errorf("%w: no permission to access %s", model.ErrAuth, groupURL)
	}

	topics = d.list.Parse(doc, pageURL).Topics
	if max > 0 && len(topics) > max {
		topics = topics[:max]
	}
	d.log.Info("Scraped topics", zap.Int("count", len(topics)))
	return topics, nil
}

// Thread loads one thread. Posts that never render give a thread without
// posts.
func (d *Driver) Thread(threadURL string) (*model.Thread, error) {
	if err := d.Navigate(threadURL); err != nil {
		return nil, err
	}
	if _, res := d.waitForRole(selector.PostContainer); res == TimedOut {
		d.log.Warn("No posts rendered", zap.String("url", threadURL))
	}
	doc, _, err := d.document()
	if err != nil {
		return nil, err
	}
	thread := d.thread.Parse(doc, threadURL)
	return &thread, nil
}
