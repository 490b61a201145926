package repository

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// mapError converts driver errors into the shared error taxonomy.
func mapError(err error, resource string, details map[string]any) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, details)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return apperrors.NewConflict(resource+" already exists", withConstraint(details, pgErr.ConstraintName))
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected:
			return apperrors.NewConflict("concurrent update on "+resource, details)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			return apperrors.NewDependencyUnavailable("postgres", err)
		}
		return apperrors.NewInternalError(err)
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return apperrors.NewDependencyUnavailable("postgres", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.NewDependencyUnavailable("postgres", err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return apperrors.NewDependencyUnavailable("postgres", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.NewInternalError(err)
}

func withConstraint(details map[string]any, constraint string) map[string]any {
	if constraint == "" {
		return details
	}
	out := map[string]any{"constraint": constraint}
	for k, v := range details {
		out[k] = v
	}
	return out
}

func staleVersion(resource, id string, version int64) error {
	return apperrors.NewConflict(resource+" was modified concurrently", map[string]any{
		"id":      id,
		"version": version,
	})
}
