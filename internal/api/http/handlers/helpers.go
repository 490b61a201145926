package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/branch-queue/internal/api/dto"
	"github.com/spec-kit/branch-queue/internal/auth"
	"github.com/spec-kit/branch-queue/internal/domain"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

func actorFrom(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal.Actor(), nil
}

// bind parses the JSON body into req and validates it.
func bind(c *fiber.Ctx, req any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
		}
	}
	return dto.Validate(req)
}

func parseTime(val string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid timestamp", map[string]any{"value": val})
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func optional(val string) *string {
	if val == "" {
		return nil
	}
	return &val
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	return pageSize, (page - 1) * pageSize
}
