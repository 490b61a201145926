package dto

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/spec-kit/branch-queue/internal/domain"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

// ServiceTypeField accepts a service type by name ("LOAN") or wire code (2).
type ServiceTypeField domain.ServiceType

func (f *ServiceTypeField) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return err
		}
		parsed, err := ParseServiceType(name)
		if err != nil {
			*f = ServiceTypeField(strings.ToUpper(strings.TrimSpace(name)))
			return nil
		}
		*f = ServiceTypeField(parsed)
		return nil
	}
	var code int
	if err := json.Unmarshal(raw, &code); err != nil {
		return err
	}
	parsed, err := domain.ServiceTypeFromCode(code)
	if err != nil {
		*f = ServiceTypeField("code:" + strconv.Itoa(code))
		return nil
	}
	*f = ServiceTypeField(parsed)
	return nil
}

// Value returns the domain service type.
func (f ServiceTypeField) Value() domain.ServiceType { return domain.ServiceType(f) }

// ParseServiceType reads a name or a numeric code.
func ParseServiceType(raw string) (domain.ServiceType, error) {
	raw = strings.TrimSpace(raw)
	if code, err := strconv.Atoi(raw); err == nil {
		return domain.ServiceTypeFromCode(code)
	}
	service := domain.ServiceType(strings.ToUpper(raw))
	if !service.Valid() {
		return "", apperrors.NewValidationError("unknown service type", map[string]any{"service_type": raw})
	}
	return service, nil
}

// ParseTicketStatus reads a name or a numeric code.
func ParseTicketStatus(raw string) (domain.TicketStatus, error) {
	raw = strings.TrimSpace(raw)
	if code, err := strconv.Atoi(raw); err == nil {
		return domain.TicketStatusFromCode(code)
	}
	status := domain.TicketStatus(strings.ToUpper(raw))
	if !status.Valid() {
		return "", apperrors.NewValidationError("unknown ticket status", map[string]any{"status": raw})
	}
	return status, nil
}
