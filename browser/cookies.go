package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/zvonler/threadgrab/model"
)

const DefaultCookieMaxAge = 7 * 24 * time.Hour

type StoredCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
}

// Expired reports whether the cookie expired before now. Session cookies
// never expire.
func (c StoredCookie) Expired(now time.Time) bool {
	return c.Expires > 0 && now.After(time.Unix(int64(c.Expires), 0))
}

type StoredSession struct {
	SavedAt time.Time      `json:"saved_at"`
	Cookies []StoredCookie `json:"cookies"`
}

// Fresh reports whether the session is worth re-importing: saved within
// maxAge and holding at least one cookie, none of them expired.
func (s StoredSession) Fresh(now time.Time, maxAge time.Duration) bool {
	if len(s.Cookies) == 0 || now.Sub(s.SavedAt) > maxAge {
		return false
	}
	for _, c := range s.Cookies {
		if c.Expired(now) {
			return false
		}
	}
	return true
}

func (s StoredSession) params() []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &expires
		}
		params = append(params, p)
	}
	return params
}

func storedCookies(cookies []*network.Cookie) []StoredCookie {
	res := make([]StoredCookie, 0, len(cookies))
	for _, c := range cookies {
		res = append(res, StoredCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return res
}

// CookieStore keeps the cookies of an interactive login between runs.
type CookieStore struct {
	Path   string
	MaxAge time.Duration
	Now    func() time.Time
}

func NewCookieStore(path string, maxAge time.Duration) *CookieStore {
	if maxAge <= 0 {
		maxAge = DefaultCookieMaxAge
	}
	return &CookieStore{Path: path, MaxAge: maxAge, Now: time.Now}
}

func (cs *CookieStore) Load() (StoredSession, error) {
	var s StoredSession
	data, err := os.ReadFile(cs.Path)
	if err != nil {
		return s, fmt.Errorf("%w: %v", model.ErrAuth, err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%w: parse %s: %v", model.ErrAuth, cs.Path, err)
	}
	return s, nil
}

// LoadFresh returns the stored session only when it passes the freshness
// check.
func (cs *CookieStore) LoadFresh() (StoredSession, bool) {
	s, err := cs.Load()
	if err != nil {
		return s, false
	}
	return s, s.Fresh(cs.Now(), cs.MaxAge)
}

func (cs *CookieStore) Save(cookies []StoredCookie) error {
	s := StoredSession{SavedAt: cs.Now().UTC(), Cookies: cookies}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	if dir := filepath.Dir(cs.Path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("%w: %v", model.ErrPersistence, err)
		}
	}
	if err := os.WriteFile(cs.Path, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return nil
}
