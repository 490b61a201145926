package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/branch-queue/internal/domain"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

// Role groups used by the router.
var (
	CounterStaff  = []domain.StaffRole{domain.StaffRoleTeller, domain.StaffRoleSupervisor, domain.StaffRoleAdmin}
	Supervisors   = []domain.StaffRole{domain.StaffRoleSupervisor, domain.StaffRoleAdmin}
	TicketIssuers = []domain.StaffRole{domain.StaffRoleKiosk, domain.StaffRoleTeller, domain.StaffRoleSupervisor, domain.StaffRoleAdmin}
)

// RequireStaffRole ensures the principal has one of the allowed roles.
func RequireStaffRole(allowed ...domain.StaffRole) fiber.Handler {
	allowedSet := make(map[domain.StaffRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures caller is authenticated.
func RequireAnyRole() fiber.Handler {
	return RequireStaffRole()
}
