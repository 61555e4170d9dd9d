package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/session"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(d time.Duration) {
	s.delays = append(s.delays, d)
}

func newTestEngine(t *testing.T, retries int) (*Engine, *session.Manager, *recordingSleeper) {
	sess, err := session.NewManager(session.DefaultOptions(), nil)
	require.Nil(t, err)

	opts := Options{Retries: retries, BaseDelay: 10 * time.Millisecond, Timeout: 5 * time.Second}
	engine, err := NewEngine(sess, opts, nil)
	require.Nil(t, err)

	sleeper := &recordingSleeper{}
	engine.Sleep = sleeper.Sleep
	return engine, sess, sleeper
}

func TestFetchSuccessAppliesHeadersAndCookies(t *testing.T) {
	var gotUA, gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if c, err := r.Cookie("SID"); err == nil {
			gotCookie = c.Value
		}
		fmt.Fprint(w, "<html><title>ok</title></html>")
	}))
	defer server.Close()

	engine, sess, sleeper := newTestEngine(t, 3)
	sess.SetAuth([]model.Cookie{{Name: "SID", Value: "secret", Domain: session.CookieDomain(server.URL)}})

	res := engine.Fetch(server.URL + "/g/test")
	require.Nil(t, res.Err)
	require.Equal(t, 200, res.Status)
	require.Equal(t, 1, res.Attempts)
	require.Contains(t, string(res.Body), "<title>ok</title>")
	require.Equal(t, session.DefaultUserAgent, gotUA)
	require.Equal(t, "secret", gotCookie)
	require.Empty(t, sleeper.delays)
	require.Equal(t, session.AuthAccepted, sess.State())
}

func TestFetchSustainedFailureRetriesExactlyR(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	engine, _, sleeper := newTestEngine(t, 3)

	res := engine.Fetch(server.URL + "/busy")
	require.NotNil(t, res.Err)
	require.True(t, errors.Is(res.Err, model.ErrTransientFetch))
	require.False(t, res.Usable())
	require.Equal(t, 4, res.Attempts)
	require.Equal(t, int32(4), atomic.LoadInt32(&hits))
	require.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
	}, sleeper.delays)
}

func TestFetchRecoversAfterTransientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "finally")
	}))
	defer server.Close()

	engine, _, sleeper := newTestEngine(t, 3)

	res := engine.Fetch(server.URL)
	require.Nil(t, res.Err)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, "finally", string(res.Body))
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeper.delays)
}

func TestFetchNonRetryableStatusKeepsBody(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "<html><title>Missing - Google Groups</title></html>")
	}))
	defer server.Close()

	engine, _, sleeper := newTestEngine(t, 3)

	res := engine.Fetch(server.URL + "/gone")
	require.Nil(t, res.Err)
	require.True(t, res.Usable())
	require.False(t, res.Success())
	require.Equal(t, 404, res.Status)
	require.Contains(t, string(res.Body), "Missing")
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
	require.Empty(t, sleeper.delays)
}

func TestFetchForbiddenMarksSessionRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	engine, sess, _ := newTestEngine(t, 1)
	res := engine.Fetch(server.URL)
	require.Nil(t, res.Err)
	require.Equal(t, session.AuthRejected, sess.State())
}

func TestFetchNetworkErrorReturnsFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	engine, _, sleeper := newTestEngine(t, 2)

	res := engine.Fetch(url)
	require.True(t, errors.Is(res.Err, model.ErrTransientFetch))
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeper.delays)
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(model.FetchResult{}))
	require.True(t, Retryable(model.FetchResult{Status: 502}))
	require.True(t, Retryable(model.FetchResult{Status: 429}))
	require.False(t, Retryable(model.FetchResult{Status: 200}))
	require.False(t, Retryable(model.FetchResult{Status: 404}))
	require.False(t, Retryable(model.FetchResult{Status: 401}))
}

func TestNewEngineRequiresSession(t *testing.T) {
	engine, err := NewEngine(nil, DefaultOptions(), nil)
	require.Nil(t, engine)
	require.True(t, errors.Is(err, model.ErrInput))
}
