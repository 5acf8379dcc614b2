package metadata

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSpotify struct {
	tokenCalls atomic.Int32
	trackBody  string
	trackCode  int
	lastPath   atomic.Value
}

func (f *fakeSpotify) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"test-token","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/v1/tracks/", func(w http.ResponseWriter, r *http.Request) {
		f.lastPath.Store(r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		code := f.trackCode
		if code == 0 {
			code = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = io.WriteString(w, f.trackBody)
	})
	return mux
}

func newTestResolver(t *testing.T, fake *fakeSpotify) *SpotifyResolver {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r, err := NewSpotifyResolver(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		APIURL:       srv.URL + "/v1",
		TokenURL:     srv.URL + "/api/token",
		Logger:       logger,
	})
	require.NoError(t, err)
	return r
}

const bohemianRhapsody = `{
  "id": "4u7EnebtmKWzUH433cf5Qv",
  "name": "Bohemian Rhapsody",
  "artists": [{"id": "1dfeR4HaWDbWqFHLkxsg1d", "name": "Queen"}],
  "album": {"name": "A Night at the Opera", "images": [{"url": "https://i.scdn.co/image/cover.jpg", "height": 640, "width": 640}]},
  "duration_ms": 354947
}`

func TestSpotifyResolver_Resolve(t *testing.T) {
	fake := &fakeSpotify{trackBody: bohemianRhapsody}
	r := newTestResolver(t, fake)

	meta, err := r.Resolve(context.Background(), "https://open.spotify.com/track/4u7EnebtmKWzUH433cf5Qv?si=abc123")
	require.NoError(t, err)

	assert.Equal(t, "Bohemian Rhapsody", meta.Title)
	assert.Equal(t, "Queen", meta.Artist)
	assert.Equal(t, "A Night at the Opera", meta.Album)
	assert.Equal(t, 354, meta.DurationSeconds)
	require.NotNil(t, meta.CoverArtURL)
	assert.Equal(t, "https://i.scdn.co/image/cover.jpg", *meta.CoverArtURL)
	assert.Equal(t, "/v1/tracks/4u7EnebtmKWzUH433cf5Qv", fake.lastPath.Load())

	_, err = r.Resolve(context.Background(), "spotify:track:4u7EnebtmKWzUH433cf5Qv")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load(), "token should be cached")
}

func TestSpotifyResolver_MissingCoverIsOptional(t *testing.T) {
	fake := &fakeSpotify{trackBody: `{"name":"Song","artists":[{"name":"Band"}],"album":{"name":"","images":[]},"duration_ms":999}`}
	r := newTestResolver(t, fake)

	meta, err := r.Resolve(context.Background(), "https://open.spotify.com/track/abc")
	require.NoError(t, err)
	assert.Nil(t, meta.CoverArtURL)
	assert.Equal(t, 0, meta.DurationSeconds)
}

func TestSpotifyResolver_ProviderFailures(t *testing.T) {
	cases := []struct {
		name string
		code int
		body string
	}{
		{name: "not found", code: http.StatusNotFound, body: `{"error":{"status":404}}`},
		{name: "server error", code: http.StatusInternalServerError, body: `oops`},
		{name: "garbage body", body: `{not json`},
		{name: "no artists", body: `{"name":"x","artists":[],"duration_ms":1000}`},
		{name: "no name", body: `{"name":"","artists":[{"name":"a"}],"duration_ms":1000}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestResolver(t, &fakeSpotify{trackCode: tc.code, trackBody: tc.body})
			_, err := r.Resolve(context.Background(), "https://open.spotify.com/track/abc")
			assert.ErrorIs(t, err, ErrProviderFailure)
		})
	}
}

func TestSpotifyResolver_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	r, err := NewSpotifyResolver(Config{ClientID: "id", ClientSecret: "s", APIURL: srv.URL, TokenURL: srv.URL + "/token"})
	require.NoError(t, err)
	r.logger.SetOutput(io.Discard)

	_, err = r.Resolve(context.Background(), "https://open.spotify.com/track/abc")
	assert.ErrorIs(t, err, ErrProviderFailure)
}

func TestNewSpotifyResolver_RequiresCredentials(t *testing.T) {
	_, err := NewSpotifyResolver(Config{ClientID: "id"})
	assert.Error(t, err)
}

func TestTrackID(t *testing.T) {
	good := map[string]string{
		"https://open.spotify.com/track/4u7EnebtmKWzUH433cf5Qv":          "4u7EnebtmKWzUH433cf5Qv",
		"https://open.spotify.com/track/4u7EnebtmKWzUH433cf5Qv?si=x&y=z": "4u7EnebtmKWzUH433cf5Qv",
		"https://open.spotify.com/intl-de/track/abc123/":                 "abc123",
		"spotify:track:abc123":                                           "abc123",
	}
	for ref, want := range good {
		got, err := TrackID(ref)
		require.NoError(t, err, ref)
		assert.Equal(t, want, got)
	}

	for _, ref := range []string{"", "   ", "not a url", "https://open.spotify.com/", "spotify:track:", "https://open.spotify.com/track/bad%20id"} {
		_, err := TrackID(ref)
		assert.ErrorIs(t, err, ErrBadReference, ref)
		assert.False(t, strings.Contains(err.Error(), "provider"))
	}
}
