package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "civic_session", time.Hour, false), mr
}

func roundTrip(t *testing.T, sm *SessionManager, cookie *http.Cookie) *Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return sess
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "civic_session" {
			return c
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func TestSessionPersistsValuesAndUser(t *testing.T) {
	sm, _ := newManager(t)
	ctx := context.Background()

	sess := roundTrip(t, sm, nil)
	sess.Set("lastActivity", "123")
	sess.SetUser("42")
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))

	loaded := roundTrip(t, sm, sessionCookie(t, rec))
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "42", loaded.User())
	assert.Equal(t, "123", loaded.Get("lastActivity"))
}

func TestUnknownCookieGetsFreshID(t *testing.T) {
	sm, _ := newManager(t)
	sess := roundTrip(t, sm, &http.Cookie{Name: "civic_session", Value: "attacker-chosen"})
	assert.NotEqual(t, "attacker-chosen", sess.ID)
}

func TestSetUserRotatesID(t *testing.T) {
	sm, mr := newManager(t)
	ctx := context.Background()

	anon := roundTrip(t, sm, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, anon))
	oldID := anon.ID

	loaded := roundTrip(t, sm, sessionCookie(t, rec))
	loaded.SetUser("7")
	rec = httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, loaded))

	assert.NotEqual(t, oldID, loaded.ID)
	assert.False(t, mr.Exists("civic:session:"+oldID))
	assert.True(t, mr.Exists("civic:session:"+loaded.ID))
}

func TestDestroyRemovesRecordAndExpiresCookie(t *testing.T) {
	sm, mr := newManager(t)
	ctx := context.Background()

	sess := roundTrip(t, sm, nil)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))
	require.True(t, mr.Exists("civic:session:"+sess.ID))

	sm.Destroy(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))
	assert.False(t, mr.Exists("civic:session:"+sess.ID))
	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)
}

func TestFlashesPopInOrder(t *testing.T) {
	sess := newSession()
	sess.AddFlash(FlashMessage{Kind: "info", Message: "one"})
	sess.AddFlash(FlashMessage{Kind: "warning", Message: "two"})
	assert.Equal(t, "one", sess.PopFlash().Message)
	assert.Equal(t, "two", sess.PopFlash().Message)
	assert.Nil(t, sess.PopFlash())
}

func TestClearUser(t *testing.T) {
	sess := newSession()
	sess.SetUser("9")
	sess.ClearUser()
	assert.Empty(t, sess.User())
}

func TestCSRFTokens(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := newSession()

	token, err := m.EnsureToken(sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, m.VerifyToken(sess, token))
	assert.ErrorIs(t, m.VerifyToken(sess, "forged"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(newSession(), token), ErrCSRFTokenMissing)
	_, err = m.EnsureToken(nil)
	assert.ErrorIs(t, err, ErrCSRFTokenMissing)
}
