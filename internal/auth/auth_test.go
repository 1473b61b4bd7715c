package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/auth"
	"github.com/vasiliy-maslov/storefront/internal/config"
)

func newManager() *auth.Manager {
	return auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour})
}

func TestManager_IssueAndParse(t *testing.T) {
	m := newManager()
	userID := uuid.Must(uuid.NewV4())

	token, err := m.Issue(userID, "alice", "alice@example.com", true)
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.True(t, claims.IsAdmin())
}

func TestManager_Parse_Rejects(t *testing.T) {
	m := newManager()
	token, err := m.Issue(uuid.Must(uuid.NewV4()), "alice", "alice@example.com", false)
	require.NoError(t, err)

	other := auth.NewManager(config.AuthConfig{JWTSecret: "another-secret"})
	_, err = other.Parse(token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = m.Parse("not-a-token")
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	expired := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Nanosecond})
	stale, err := expired.Issue(uuid.Must(uuid.NewV4()), "bob", "bob@example.com", false)
	require.NoError(t, err)
	time.Sleep(2 * time.Second)
	_, err = expired.Parse(stale)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func newRouter(m *auth.Manager) chi.Router {
	r := chi.NewRouter()
	r.Use(m.Authenticate)
	r.With(auth.RequireUser).Get("/cart", func(w http.ResponseWriter, r *http.Request) {
		claims, _ := auth.FromContext(r.Context())
		_, _ = w.Write([]byte(claims.Username))
	})
	r.With(auth.RequireAdmin).Post("/admin/orders/{orderID}/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func TestRequireUser(t *testing.T) {
	m := newManager()
	router := newRouter(m)

	req := httptest.NewRequest(http.MethodGet, "/cart?x=1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login?next=%2Fcart%3Fx%3D1", rr.Header().Get("Location"))

	token, err := m.Issue(uuid.Must(uuid.NewV4()), "alice", "alice@example.com", false)
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice", rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireAdmin(t *testing.T) {
	m := newManager()
	router := newRouter(m)

	customer, err := m.Issue(uuid.Must(uuid.NewV4()), "alice", "alice@example.com", false)
	require.NoError(t, err)
	admin, err := m.Issue(uuid.Must(uuid.NewV4()), "root", "root@example.com", true)
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		wantCode int
	}{
		{name: "anonymous", token: "", wantCode: http.StatusSeeOther},
		{name: "customer", token: customer, wantCode: http.StatusForbidden},
		{name: "admin", token: admin, wantCode: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/orders/"+uuid.Must(uuid.NewV4()).String()+"/status", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestCookieAuthenticated(t *testing.T) {
	tests := []struct {
		name   string
		bearer string
		cookie string
		want   bool
	}{
		{name: "anonymous"},
		{name: "session_cookie", cookie: "tok", want: true},
		{name: "bearer_only", bearer: "Bearer tok"},
		{name: "bearer_and_cookie", bearer: "Bearer tok", cookie: "tok"},
		{name: "malformed_header_with_cookie", bearer: "Basic abc", cookie: "tok", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/cart", nil)
			if tt.bearer != "" {
				req.Header.Set("Authorization", tt.bearer)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: tt.cookie})
			}
			assert.Equal(t, tt.want, auth.CookieAuthenticated(req))
		})
	}
}

func TestManager_CSRFKey(t *testing.T) {
	key := newManager().CSRFKey()
	assert.Len(t, key, 32)
	assert.Equal(t, key, newManager().CSRFKey())
	assert.NotEqual(t, key, auth.NewManager(config.AuthConfig{JWTSecret: "other"}).CSRFKey())
}
