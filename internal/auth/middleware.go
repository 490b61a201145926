package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/branch-queue/internal/domain"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller as asserted by its token.
type Principal struct {
	UserID   string
	Name     string
	Email    string
	Role     domain.StaffRole
	BranchID *string
}

// Actor converts the principal for service calls.
func (p *Principal) Actor() domain.Actor {
	return domain.Actor{UserID: p.UserID, FullName: p.Name, Role: p.Role, BranchID: p.BranchID}
}

// AuthMiddleware validates bearer tokens.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes. Event streams may pass
// the token as access_token since browsers cannot set headers on EventSource.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token := ""
	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return apperrors.NewUnauthorized("invalid authorization header")
		}
		token = parts[1]
	} else {
		token = c.Query("access_token")
	}
	if token == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{
		UserID:   claims.Subject,
		Name:     claims.Name,
		Email:    claims.Email,
		Role:     claims.Role,
		BranchID: claims.BranchID,
	})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
