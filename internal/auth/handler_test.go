package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/civicconnect/civic/internal/access"
	"github.com/civicconnect/civic/internal/activity"
	"github.com/civicconnect/civic/internal/auth"
	"github.com/civicconnect/civic/internal/credential"
	"github.com/civicconnect/civic/internal/rbac"
	"github.com/civicconnect/civic/internal/shared"
	_ "github.com/civicconnect/civic/testing"
)

const strongPassword = "Sturdy#Pass9"

type memRepo struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*auth.User
	sessions map[string]int64
	findErr  error
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[int64]*auth.User), sessions: make(map[string]int64)}
}

func (r *memRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) Create(_ context.Context, nu auth.NewUser) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, nu.Email) {
			return nil, shared.ErrDuplicate
		}
	}
	r.nextID++
	u := &auth.User{ID: r.nextID, Email: nu.Email, Name: nu.Name, PasswordHash: nu.PasswordHash, Role: nu.Role, IsActive: true}
	r.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r *memRepo) MarkEmailVerified(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.EmailVerified = true
	return nil
}

func (r *memRepo) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = userID
	return nil
}

func (r *memRepo) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memRepo) add(t *testing.T, u auth.User, password string) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	u.ID = r.nextID
	u.PasswordHash = string(hash)
	r.users[u.ID] = &u
	return &u
}

type recordingMailer struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *recordingMailer) SendVerification(_ context.Context, to, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = make(map[string]string)
	}
	m.tokens[to] = token
	return nil
}

func (m *recordingMailer) tokenFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[email]
}

type harness struct {
	router   chi.Router
	sessions *shared.SessionManager
	repo     *memRepo
	mailer   *recordingMailer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemRepo()
	mailer := &recordingMailer{}
	sessions := shared.NewSessionManager(client, "civic_session", time.Hour, false)
	service := auth.NewService(auth.ServiceConfig{
		Repo:   repo,
		Hasher: credential.NewHasher(bcrypt.MinCost),
		Tokens: auth.NewTokenStore(client, 0),
		Mailer: mailer,
	})
	loader := auth.NewPrincipalLoader(repo, nil)
	handler := auth.NewHandler(nil, service, sessions, shared.NewCSRFManager("csrf-secret"), rbac.Middleware{})

	r := chi.NewRouter()
	r.Use(loader.Middleware)
	handler.MountRoutes(r)
	return &harness{router: r, sessions: sessions, repo: repo, mailer: mailer}
}

// do runs one request through the router inside a loaded session and commits it.
func (h *harness) do(t *testing.T, method, target, body, sessionID string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: h.sessions.CookieName(), Value: sessionID})
	}
	ctx := context.Background()
	sess, err := h.sessions.Load(ctx, req)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
	require.NoError(t, h.sessions.Commit(ctx, httptest.NewRecorder(), sess))
	return rec, sess
}

type sessionBody struct {
	Principal *access.Principal `json:"principal"`
	Redirect  string            `json:"redirect"`
}

type messageBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRegisterThenVerifyEmail(t *testing.T) {
	h := newHarness(t)

	rec, sess := h.do(t, http.MethodPost, "/register",
		`{"email":"Rep@Example.org","name":"Dana Reyes","password":"`+strongPassword+`","role":"representative"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode[sessionBody](t, rec)
	require.NotNil(t, body.Principal)
	assert.Equal(t, access.RoleRepresentative, body.Principal.Role)
	assert.False(t, body.Principal.EmailVerified)
	assert.Equal(t, "/representative/dashboard", body.Redirect)
	assert.NotEmpty(t, sess.User())

	token := h.mailer.tokenFor("rep@example.org")
	require.NotEmpty(t, token)

	rec, _ = h.do(t, http.MethodGet, "/verify?token="+token, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/me", "", sess.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[sessionBody](t, rec).Principal.EmailVerified)

	rec, _ = h.do(t, http.MethodGet, "/verify?token="+token, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodPost, "/register",
		`{"email":"a@example.org","name":"Al","password":"`+strongPassword+`","role":"admin"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[messageBody](t, rec).Fields, "role")
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodPost, "/register",
		`{"email":"c@example.org","name":"Cy","password":"short","role":"citizen"}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NotEmpty(t, decode[messageBody](t, rec).Fields["password"])
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.repo.add(t, auth.User{Email: "dup@example.org", Role: access.RoleCitizen, IsActive: true}, strongPassword)
	rec, _ := h.do(t, http.MethodPost, "/register",
		`{"email":"dup@example.org","name":"Dup","password":"`+strongPassword+`","role":"citizen"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.repo.add(t, auth.User{Email: "user@example.org", Role: access.RoleCitizen, IsActive: true}, strongPassword)

	rec, sess := h.do(t, http.MethodPost, "/login", `{"email":"user@example.org","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", decode[messageBody](t, rec).Message)
	assert.Empty(t, sess.User())
}

func TestLoginInactiveAccount(t *testing.T) {
	h := newHarness(t)
	h.repo.add(t, auth.User{Email: "gone@example.org", Role: access.RoleCitizen}, strongPassword)
	rec, _ := h.do(t, http.MethodPost, "/login", `{"email":"gone@example.org","password":"`+strongPassword+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRedirects(t *testing.T) {
	cases := []struct {
		name string
		from string
		want string
	}{
		{name: "role dashboard", from: "", want: "/organization/dashboard"},
		{name: "resume location", from: "/settings?tab=profile", want: "/settings?tab=profile"},
		{name: "protocol relative rejected", from: "//evil.example", want: "/organization/dashboard"},
		{name: "absolute url rejected", from: "https://evil.example/", want: "/organization/dashboard"},
		{name: "login loop rejected", from: "/login?from=%2Fadmin", want: "/organization/dashboard"},
		{name: "tab before second slash rejected", from: "/\t/evil.example", want: "/organization/dashboard"},
		{name: "newline before second slash rejected", from: "/\n/evil.example", want: "/organization/dashboard"},
		{name: "carriage return and backslash rejected", from: "/\r\\evil.example", want: "/organization/dashboard"},
		{name: "backslash rejected", from: "/\\evil.example", want: "/organization/dashboard"},
		{name: "userinfo rejected", from: "https://civic@evil.example/", want: "/organization/dashboard"},
		{name: "encoded slashes rejected", from: "/%2F/evil.example", want: "/organization/dashboard"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.repo.add(t, auth.User{Email: "org@example.org", Role: access.RoleOrganization, IsActive: true, EmailVerified: true}, strongPassword)
			payload, err := json.Marshal(map[string]string{"email": "org@example.org", "password": strongPassword, "from": tc.from})
			require.NoError(t, err)

			rec, sess := h.do(t, http.MethodPost, "/login", string(payload), "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tc.want, decode[sessionBody](t, rec).Redirect)
			assert.NotEmpty(t, sess.User())
		})
	}
}

func TestLoginStartsActivityWindow(t *testing.T) {
	h := newHarness(t)
	h.repo.add(t, auth.User{Email: "user@example.org", Role: access.RoleCitizen, IsActive: true}, strongPassword)

	rec, sess := h.do(t, http.MethodPost, "/login", `{"email":"user@example.org","password":"`+strongPassword+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	last, ok := activity.SessionStore{Session: sess}.LastActivity()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), last, 5*time.Second)
	assert.Contains(t, h.repo.sessions, sess.ID)
}

func TestMeRequiresAuthentication(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodGet, "/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", decode[messageBody](t, rec).Message)
}

func TestLogoutEndsSession(t *testing.T) {
	h := newHarness(t)
	h.repo.add(t, auth.User{Email: "user@example.org", Role: access.RoleCitizen, IsActive: true}, strongPassword)

	_, sess := h.do(t, http.MethodPost, "/login", `{"email":"user@example.org","password":"`+strongPassword+`"}`, "")
	rec, _ := h.do(t, http.MethodGet, "/me", "", sess.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/logout", "", sess.ID)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, h.repo.sessions, sess.ID)

	rec, _ = h.do(t, http.MethodGet, "/me", "", sess.ID)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResendVerification(t *testing.T) {
	h := newHarness(t)
	h.repo.add(t, auth.User{Email: "new@example.org", Role: access.RoleCitizen, IsActive: true}, strongPassword)
	h.repo.add(t, auth.User{Email: "done@example.org", Role: access.RoleCitizen, IsActive: true, EmailVerified: true}, strongPassword)

	_, sess := h.do(t, http.MethodPost, "/login", `{"email":"new@example.org","password":"`+strongPassword+`"}`, "")
	rec, _ := h.do(t, http.MethodPost, "/verify/resend", "", sess.ID)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, h.mailer.tokenFor("new@example.org"))

	_, sess = h.do(t, http.MethodPost, "/login", `{"email":"done@example.org","password":"`+strongPassword+`"}`, "")
	rec, _ = h.do(t, http.MethodPost, "/verify/resend", "", sess.ID)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCSRFTokenIsStable(t *testing.T) {
	h := newHarness(t)
	rec, sess := h.do(t, http.MethodGet, "/csrf", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[map[string]string](t, rec)["token"]
	require.NotEmpty(t, first)

	rec, _ = h.do(t, http.MethodGet, "/csrf", "", sess.ID)
	assert.Equal(t, first, decode[map[string]string](t, rec)["token"])
}
