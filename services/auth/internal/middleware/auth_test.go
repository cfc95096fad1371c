package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rca-academy/school_mis/services/auth/internal/authz"
	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/service"
)

type fakeAuth struct {
	id  *domain.Identity
	err error
	got string
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*domain.Identity, error) {
	f.got = token
	return f.id, f.err
}

var teacher = &domain.Identity{
	ID:     uuid.New(),
	Email:  "teacher@rca.ac.rw",
	Status: domain.StatusActive,
	Roles:  []domain.Role{{Name: "TEACHER", Permissions: []string{"students:read", "attendance:write"}}},
}

func run(t *testing.T, h echo.HandlerFunc, authHeader string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he), "expected *echo.HTTPError, got %v", err)
	return he.Code
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(echo.HeaderAuthorization, tt.header)
			got, ok := BearerToken(e.NewContext(req, httptest.NewRecorder()))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequireAuth(t *testing.T) {
	reached := func(c echo.Context) error {
		id, ok := domain.IdentityFromContext(c.Request().Context())
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		return c.String(http.StatusOK, id.Email)
	}

	t.Run("ok", func(t *testing.T) {
		fa := &fakeAuth{id: teacher}
		g := NewGuard(fa, authz.NewResolver())
		rec, err := run(t, g.RequireAuth(reached), "Bearer tok")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, teacher.Email, rec.Body.String())
		assert.Equal(t, "tok", fa.got)
	})

	t.Run("missing header", func(t *testing.T) {
		g := NewGuard(&fakeAuth{id: teacher}, authz.NewResolver())
		_, err := run(t, g.RequireAuth(reached), "")
		assert.Equal(t, http.StatusUnauthorized, httpCode(t, err))
	})

	t.Run("invalid token", func(t *testing.T) {
		g := NewGuard(&fakeAuth{err: service.ErrInvalidToken}, authz.NewResolver())
		_, err := run(t, g.RequireAuth(reached), "Bearer tok")
		assert.Equal(t, http.StatusUnauthorized, httpCode(t, err))
	})

	t.Run("backend failure", func(t *testing.T) {
		g := NewGuard(&fakeAuth{err: errors.New("redis down")}, authz.NewResolver())
		_, err := run(t, g.RequireAuth(reached), "Bearer tok")
		assert.Equal(t, http.StatusServiceUnavailable, httpCode(t, err))
	})
}

func TestRequirePermission(t *testing.T) {
	g := NewGuard(&fakeAuth{id: teacher}, authz.NewResolver())
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	rec, err := run(t, g.RequireAuth(g.RequirePermission("students:read", "attendance:write")(ok)), "Bearer tok")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err = run(t, g.RequireAuth(g.RequirePermission("students:write")(ok)), "Bearer tok")
	assert.Equal(t, http.StatusForbidden, httpCode(t, err))

	_, err = run(t, g.RequirePermission("students:read")(ok), "")
	assert.Equal(t, http.StatusUnauthorized, httpCode(t, err))
}
