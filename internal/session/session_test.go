package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"bookcal/internal/apperr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubProvider struct {
	session *Session
	err     error
}

func (p stubProvider) GetSession(*http.Request) (*Session, error) {
	return p.session, p.err
}

func requestWithCookie(name, value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/calendar", nil)
	if name != "" {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return r
}

func TestResolve(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		provider stubProvider
		wantKind apperr.Kind
		wantTok  string
	}{
		{"valid", stubProvider{session: &Session{AccessToken: "abc", Expiry: now.Add(time.Hour)}}, 0, "abc"},
		{"no expiry", stubProvider{session: &Session{AccessToken: "abc"}}, 0, "abc"},
		{"no session", stubProvider{}, apperr.KindAuthRequired, ""},
		{"no token", stubProvider{session: &Session{Subject: "x"}}, apperr.KindAuthRequired, ""},
		{"expired", stubProvider{session: &Session{AccessToken: "abc", Expiry: now}}, apperr.KindAuthRequired, ""},
		{"store failure", stubProvider{err: errors.New("down")}, apperr.KindInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(testLogger(), tt.provider)
			r.now = func() time.Time { return now }

			cred, err := r.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
			if tt.wantTok != "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantTok, cred.AccessToken)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Empty(t, cred.AccessToken)
		})
	}
}

func TestHeaderProvider(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"Bearer   ":   "",
		"":            "",
	}
	for header, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		sess, err := HeaderProvider{}.GetSession(r)
		require.NoError(t, err)
		if want == "" {
			assert.Nil(t, sess, header)
			continue
		}
		require.NotNil(t, sess, header)
		assert.Equal(t, want, sess.AccessToken)
	}
}

func TestSessionIDRejectsPathLikeValues(t *testing.T) {
	assert.Equal(t, "", sessionID(requestWithCookie("", ""), "session"))
	assert.Equal(t, "", sessionID(requestWithCookie("session", "../etc"), "session"))
	assert.Equal(t, "", sessionID(requestWithCookie("session", ".."), "session"))
	assert.Equal(t, "work_1", sessionID(requestWithCookie("session", "work_1"), "session"))
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, SaveToken(TokenPath(dir, "personal"), &oauth2.Token{
		AccessToken: "file-token",
		TokenType:   "Bearer",
		Expiry:      expiry,
	}))

	store := NewFileStore(testLogger(), dir, "session", nil)

	sess, err := store.GetSession(requestWithCookie("session", "personal"))
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "personal", sess.Subject)
	assert.Equal(t, "file-token", sess.AccessToken)
	assert.True(t, sess.Expiry.Equal(expiry))

	sess, err = store.GetSession(requestWithCookie("session", "unknown"))
	require.NoError(t, err)
	assert.Nil(t, sess)

	sess, err = store.GetSession(requestWithCookie("", ""))
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestFileStoreRefreshesExpiredToken(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh-me", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenServer.Close()

	dir := t.TempDir()
	path := TokenPath(dir, "work")
	require.NoError(t, SaveToken(path, &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-me",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	cfg := &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenServer.URL},
	}
	store := NewFileStore(testLogger(), dir, "session", cfg)

	sess, err := store.GetSession(requestWithCookie("session", "work"))
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "fresh", sess.AccessToken)

	saved, err := TokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", saved.AccessToken)
	assert.Equal(t, "refresh-me", saved.RefreshToken)
}

func TestDefaultTokenDir(t *testing.T) {
	assert.True(t, strings.HasSuffix(DefaultTokenDir(), filepath.Join("bookcal", "sessions")))
}

type fakeRedis map[string]string

func (f fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if v, ok := f[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func TestRedisStore(t *testing.T) {
	store := &RedisStore{
		client: fakeRedis{
			"bookcal:session:s1":  `{"subject":"jane","accessToken":"redis-token","expiresAt":"2030-01-01T00:00:00Z"}`,
			"bookcal:session:bad": `not json`,
		},
		prefix:     "bookcal:session:",
		cookieName: "session",
	}

	sess, err := store.GetSession(requestWithCookie("session", "s1"))
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "redis-token", sess.AccessToken)
	assert.Equal(t, "jane", sess.Subject)
	assert.Equal(t, 2030, sess.Expiry.Year())

	sess, err = store.GetSession(requestWithCookie("session", "missing"))
	require.NoError(t, err)
	assert.Nil(t, sess)

	_, err = store.GetSession(requestWithCookie("session", "bad"))
	assert.Error(t, err)
}
