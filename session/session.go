// Package session owns the cookie jar and request headers shared by every
// fetch of one run, and infers authentication from fetch outcomes.
package session

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/corpix/uarand"
	"github.com/zvonler/threadgrab/model"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type AuthState int

const (
	AuthUnknown AuthState = iota
	AuthAccepted
	AuthRejected
)

func (s AuthState) String() string {
	switch s {
	case AuthAccepted:
		return "accepted"
	case AuthRejected:
		return "rejected"
	}
	return "unknown"
}

type Options struct {
	// UserAgent "random" picks a browser user agent per session.
	UserAgent      string
	AcceptLanguage string
	// LoginPatterns are substrings of URLs that indicate a redirect to a
	// sign-in page.
	LoginPatterns []string
}

func DefaultOptions() Options {
	return Options{
		UserAgent:      DefaultUserAgent,
		AcceptLanguage: "en-US,en;q=0.9",
		LoginPatterns:  []string{"accounts.google.com/signin", "accounts.google.com/ServiceLogin", "/login"},
	}
}

type Manager struct {
	jar     *cookiejar.Jar
	cookies map[string]map[string]model.Cookie
	headers http.Header
	opts    Options
	state   AuthState
	log     *zap.Logger
}

func NewManager(opts Options, log *zap.Logger) (*Manager, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	ua := opts.UserAgent
	switch ua {
	case "":
		ua = DefaultUserAgent
	case "random":
		ua = uarand.GetRandom()
	}
	lang := opts.AcceptLanguage
	if lang == "" {
		lang = "en-US,en;q=0.9"
	}

	m := &Manager{
		jar:     jar,
		cookies: make(map[string]map[string]model.Cookie),
		headers: http.Header{
			"User-Agent":      []string{ua},
			"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"},
			"Accept-Language": []string{lang},
		},
		opts: opts,
		log:  log,
	}
	return m, nil
}

func (m *Manager) Jar() *cookiejar.Jar {
	return m.jar
}

func (m *Manager) Headers() http.Header {
	return m.headers.Clone()
}

// SetAuth merges cookies by name within their domain. The last write for a
// name wins. Any previously inferred authentication state is discarded.
func (m *Manager) SetAuth(cookies []model.Cookie) {
	for _, c := range cookies {
		domain := normalizeDomain(c.Domain)
		byName, ok := m.cookies[domain]
		if !ok {
			byName = make(map[string]model.Cookie)
			m.cookies[domain] = byName
		}
		c.Domain = domain
		byName[c.Name] = c
		m.jar.SetCookies(jarURL(domain), []*http.Cookie{jarCookie(c)})
	}
	m.state = AuthUnknown
	m.log.Info("Session cookies set", zap.Int("count", len(cookies)))
}

// Cookies returns the cookies held for domain, sorted by name.
func (m *Manager) Cookies(domain string) []model.Cookie {
	byName := m.cookies[normalizeDomain(domain)]
	res := make([]model.Cookie, 0, len(byName))
	for _, c := range byName {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

func (m *Manager) HasCookies() bool {
	return len(m.cookies) > 0
}

// Observe infers authentication lazily from the first privileged fetch
// and returns the current state. Later observations do not change an
// inferred state.
func (m *Manager) Observe(res model.FetchResult) AuthState {
	if m.state != AuthUnknown || res.Status == 0 {
		return m.state
	}
	switch {
	case res.Status == http.StatusUnauthorized || res.Status == http.StatusForbidden:
		m.state = AuthRejected
	case m.IsLoginURL(res.URL):
		m.state = AuthRejected
	case res.Success():
		m.state = AuthAccepted
	default:
		return m.state
	}
	m.log.Debug("Authentication inferred",
		zap.String("url", res.URL),
		zap.Int("status", res.Status),
		zap.Stringer("state", m.state))
	return m.state
}

func (m *Manager) State() AuthState {
	return m.state
}

func (m *Manager) IsLoginURL(u string) bool {
	for _, pattern := range m.opts.LoginPatterns {
		if pattern != "" && strings.Contains(u, pattern) {
			return true
		}
	}
	return false
}

// LoadCookieFile reads a flat JSON object mapping cookie names to values
// and scopes every cookie to domain. Failures are authentication errors.
func LoadCookieFile(path, domain string) ([]model.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read cookie file: %v", model.ErrAuth, err)
	}
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("%w: parse cookie file %q: %v", model.ErrAuth, path, err)
	}
	if len(flat) == 0 {
		return nil, fmt.Errorf("%w: cookie file %q is empty", model.ErrAuth, path)
	}

	names := make([]string, 0, len(flat))
	for name := range flat {
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]model.Cookie, 0, len(flat))
	for _, name := range names {
		cookies = append(cookies, model.Cookie{Name: name, Value: flat[name], Domain: domain})
	}
	return cookies, nil
}

// CookieDomain returns the registrable cookie scope for a URL, e.g.
// ".google.com" for groups.google.com. IP hosts are returned unchanged.
func CookieDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return "." + etld1
	}
	return host
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

func jarURL(domain string) *url.URL {
	return &url.URL{Scheme: "https", Host: strings.TrimPrefix(domain, ".")}
}

func jarCookie(c model.Cookie) *http.Cookie {
	hc := &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"}
	// Host-only cookies for IPs and single-label hosts; the jar rejects a
	// Domain attribute on those.
	host := strings.TrimPrefix(c.Domain, ".")
	if net.ParseIP(host) == nil && strings.Contains(host, ".") {
		hc.Domain = c.Domain
	}
	return hc
}
