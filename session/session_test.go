package session

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zvonler/threadgrab/model"
)

func newManager(t *testing.T) *Manager {
	m, err := NewManager(DefaultOptions(), nil)
	require.Nil(t, err)
	return m
}

func TestSetAuthMergesByNameLastWriteWins(t *testing.T) {
	m := newManager(t)
	m.SetAuth([]model.Cookie{
		{Name: "SID", Value: "old", Domain: ".google.com"},
		{Name: "HSID", Value: "h", Domain: ".google.com"},
	})
	m.SetAuth([]model.Cookie{
		{Name: "SID", Value: "new", Domain: ".Google.com"},
		{Name: "SID", Value: "other", Domain: ".example.com"},
	})

	require.Equal(t, []model.Cookie{
		{Name: "HSID", Value: "h", Domain: ".google.com"},
		{Name: "SID", Value: "new", Domain: ".google.com"},
	}, m.Cookies(".google.com"))
	require.Equal(t, 1, len(m.Cookies(".example.com")))

	u, err := url.Parse("https://groups.google.com/g/golang-nuts")
	require.Nil(t, err)
	values := map[string]string{}
	for _, c := range m.Jar().Cookies(u) {
		values[c.Name] = c.Value
	}
	require.Equal(t, map[string]string{"SID": "new", "HSID": "h"}, values)
}

func TestHostOnlyCookiesForIPs(t *testing.T) {
	m := newManager(t)
	m.SetAuth([]model.Cookie{{Name: "token", Value: "t", Domain: "127.0.0.1"}})

	u, err := url.Parse("http://127.0.0.1:8080/g/x")
	require.Nil(t, err)
	cookies := m.Jar().Cookies(u)
	require.Equal(t, 1, len(cookies))
	require.Equal(t, "t", cookies[0].Value)
}

func TestObserveInfersOnce(t *testing.T) {
	m := newManager(t)
	require.Equal(t, AuthUnknown, m.State())

	require.Equal(t, AuthUnknown, m.Observe(model.FetchResult{Err: model.ErrTransientFetch}))
	require.Equal(t, AuthRejected, m.Observe(model.FetchResult{URL: "https://x/c/1", Status: 403, Body: []byte{}}))
	require.Equal(t, AuthRejected, m.Observe(model.FetchResult{URL: "https://x/c/2", Status: 200, Body: []byte{}}))

	m.SetAuth(nil)
	require.Equal(t, AuthUnknown, m.State())
	require.Equal(t, AuthRejected, m.Observe(model.FetchResult{
		URL: "https://accounts.google.com/signin/v2?continue=x", Status: 200, Body: []byte{}}))

	m.SetAuth(nil)
	require.Equal(t, AuthAccepted, m.Observe(model.FetchResult{URL: "https://x/c/3", Status: 200, Body: []byte{}}))
}

func TestHeaders(t *testing.T) {
	m := newManager(t)
	h := m.Headers()
	require.Equal(t, DefaultUserAgent, h.Get("User-Agent"))
	require.NotEmpty(t, h.Get("Accept"))
	require.Equal(t, "en-US,en;q=0.9", h.Get("Accept-Language"))

	h.Set("User-Agent", "changed")
	require.Equal(t, DefaultUserAgent, m.Headers().Get("User-Agent"))

	random, err := NewManager(Options{UserAgent: "random"}, nil)
	require.Nil(t, err)
	require.NotEmpty(t, random.Headers().Get("User-Agent"))
	require.NotEqual(t, "random", random.Headers().Get("User-Agent"))
}

func TestLoadCookieFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cookies.json")
	require.Nil(t, os.WriteFile(path, []byte(`{"SID": "a", "APISID": "b"}`), 0600))

	cookies, err := LoadCookieFile(path, ".google.com")
	require.Nil(t, err)
	require.Equal(t, []model.Cookie{
		{Name: "APISID", Value: "b", Domain: ".google.com"},
		{Name: "SID", Value: "a", Domain: ".google.com"},
	}, cookies)

	_, err = LoadCookieFile(filepath.Join(dir, "missing.json"), ".google.com")
	require.True(t, errors.Is(err, model.ErrAuth))

	bad := filepath.Join(dir, "bad.json")
	require.Nil(t, os.WriteFile(bad, []byte(`[1, 2]`), 0600))
	_, err = LoadCookieFile(bad, ".google.com")
	require.True(t, errors.Is(err, model.ErrAuth))

	empty := filepath.Join(dir, "empty.json")
	require.Nil(t, os.WriteFile(empty, []byte(`{}`), 0600))
	_, err = LoadCookieFile(empty, ".google.com")
	require.True(t, errors.Is(err, model.ErrAuth))
}

func TestCookieDomain(t *testing.T) {
	require.Equal(t, ".google.com", CookieDomain("https://groups.google.com/g/golang-nuts/c/abc"))
	require.Equal(t, ".example.co.uk", CookieDomain("https://forum.example.co.uk/x"))
	require.Equal(t, "127.0.0.1", CookieDomain("http://127.0.0.1:4567/g/x"))
	require.Equal(t, "localhost", CookieDomain("http://localhost:4567/g/x"))
}
