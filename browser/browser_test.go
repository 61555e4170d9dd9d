package browser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zvonler/threadgrab/model"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *CookieStore {
	store := NewCookieStore(filepath.Join(t.TempDir(), "cookies", "google.json"), 0)
	store.Now = func() time.Time { return now }
	return store
}

func TestCookieStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	cookies := []StoredCookie{
		{Name: "SID", Value: "abc", Domain: ".google.com", Path: "/", Expires: float64(now.Add(time.Hour).Unix()), Secure: true},
		{Name: "NID", Value: "def", Domain: ".google.com", Path: "/"},
	}
	require.Equal(t, nil, store.Save(cookies))

	info, err := os.Stat(store.Path)
	require.Equal(t, nil, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	stored, err := store.Load()
	require.Equal(t, nil, err)
	require.Equal(t, cookies, stored.Cookies)
	require.True(t, stored.SavedAt.Equal(now))

	stored, fresh := store.LoadFresh()
	require.True(t, fresh)
	require.Equal(t, 2, len(stored.params()))
	require.NotNil(t, stored.params()[0].Expires)
	require.Nil(t, stored.params()[1].Expires)
}

func TestFreshness(t *testing.T) {
	valid := StoredCookie{Name: "SID", Value: "x", Expires: float64(now.Add(time.Hour).Unix())}
	expired := StoredCookie{Name: "OLD", Value: "y", Expires: float64(now.Add(-time.Hour).Unix())}
	sessionCookie := StoredCookie{Name: "S", Value: "z"}

	s := StoredSession{SavedAt: now.Add(-time.Hour), Cookies: []StoredCookie{valid, sessionCookie}}
	require.True(t, s.Fresh(now, DefaultCookieMaxAge))
	require.False(t, s.Fresh(now, 30*time.Minute))

	s.Cookies = append(s.Cookies, expired)
	require.False(t, s.Fresh(now, DefaultCookieMaxAge))

	require.False(t, StoredSession{SavedAt: now}.Fresh(now, DefaultCookieMaxAge))
}

func TestLoadMissingOrCorruptStore(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load()
	require.True(t, errors.Is(err, model.ErrAuth))
	_, fresh := store.LoadFresh()
	require.False(t, fresh)

	require.Equal(t, nil, os.MkdirAll(filepath.Dir(store.Path), 0700))
	require.Equal(t, nil, os.WriteFile(store.Path, []byte("[not json"), 0600))
	_, err = store.Load()
	require.True(t, errors.Is(err, model.ErrAuth))
}

func TestGroupURL(t *testing.T) {
	d := NewDriver(DefaultOptions(), nil, nil, nil)
	require.Equal(t, "https://groups.google.com/g/golang-nuts", d.GroupURL("golang-nuts"))
	require.Equal(t, "https://groups.google.com/g/a%20b", d.GroupURL("a b"))
	require.Equal(t, "https://example.com/g/x", d.GroupURL("https://example.com/g/x"))
}

func TestLoginURLDetection(t *testing.T) {
	d := NewDriver(DefaultOptions(), nil, nil, nil)
	require.True(t, d.isLoginURL("https://accounts.google.com/signin/v2/identifier"))
	require.False(t, d.isLoginURL("https://groups.google.com/g/golang-nuts"))
}

func TestDriverRequiresStart(t *testing.T) {
	d := NewDriver(DefaultOptions(), nil, nil, nil)
	_, err := d.WaitVisible("body", time.Second)
	require.NotNil(t, err)

	topics, err := d.Topics("golang-nuts", 5)
	require.NotNil(t, err)
	require.NotNil(t, topics)
	require.Empty(t, topics)

	require.Equal(t, "found", Found.String())
	require.Equal(t, "timed-out", TimedOut.String())
}
