package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/branch-queue/internal/domain"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "idp", time.Minute)
	branch := "b1"
	token, expires, err := tm.GenerateToken("u1", Claims{Name: "Ana", Role: domain.StaffRoleTeller, BranchID: &branch})
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, domain.StaffRoleTeller, claims.Role)
	require.NotNil(t, claims.BranchID)
	assert.Equal(t, "b1", *claims.BranchID)

	_, err = NewTokenManager("other", "idp", time.Minute).ParseToken(token)
	assert.Error(t, err)
	_, err = NewTokenManager("secret", "someone-else", time.Minute).ParseToken(token)
	assert.Error(t, err)
}

func newTestApp(tm *TokenManager, roles ...domain.StaffRole) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	mw := NewAuthMiddleware(tm)
	app.Get("/whoami", mw.Handle, RequireStaffRole(roles...), func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.Actor().FullName)
	})
	return app
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", "", time.Minute)
	app := newTestApp(tm, Supervisors...)

	supervisor, _, err := tm.GenerateToken("u2", Claims{Name: "Sam", Role: domain.StaffRoleSupervisor})
	require.NoError(t, err)
	teller, _, err := tm.GenerateToken("u3", Claims{Name: "Tom", Role: domain.StaffRoleTeller})
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "malformed", header: "Token abc", status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc", status: http.StatusUnauthorized},
		{name: "wrong role", header: "Bearer " + teller, status: http.StatusForbidden},
		{name: "ok", header: "Bearer " + supervisor, status: http.StatusOK},
		{name: "query token", query: "?access_token=" + supervisor, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
