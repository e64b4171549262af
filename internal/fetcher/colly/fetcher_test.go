package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
)

func TestFetcherGetReturnsBodyVerbatim(t *testing.T) {
	t.Parallel()

	payload := []byte("%PDF-1.4\n\x00\x01\x02binary tail\n%%EOF")
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "archiver-test", Timeout: time.Second}, nil)
	body, err := f.Get(context.Background(), srv.URL+"/doc.pdf")
	require.NoError(t, err)
	require.Equal(t, payload, body)
	require.Equal(t, "archiver-test", gotUA)

	// Revisiting the same URL must hit the server again.
	body, err = f.Get(context.Background(), srv.URL+"/doc.pdf")
	require.NoError(t, err)
	require.Equal(t, payload, body)
}

func TestFetcherGetNon2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(Config{}, nil).Get(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestFetcherGetHonorsLimiter(t *testing.T) {
	t.Parallel()

	limiter := &stubLimiter{err: errors.New("denied")}
	_, err := New(Config{}, limiter).Get(context.Background(), "http://127.0.0.1:1/never")
	require.ErrorIs(t, err, limiter.err)
	require.Equal(t, 1, limiter.calls)
}

func TestFetcherGetCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{}, nil).Get(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	var body []byte
	var fetchErr error
	hooks := &stubHooks{}
	configureCollectorHooks(hooks, &body, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{Body: []byte("body")})
	require.Equal(t, "body", string(body))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("Bad Gateway"))
	require.EqualError(t, fetchErr, "status 502: Bad Gateway")
}

type stubLimiter struct {
	calls int
	err   error
}

func (s *stubLimiter) Wait(context.Context, string) error {
	s.calls++
	return s.err
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
