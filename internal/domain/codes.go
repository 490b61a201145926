package domain

import "fmt"

// Wire codes are the stable integers exposed at the serialization boundary.
// Never reorder: clients persist these numbers.

// ServiceTypeCode returns the wire code for s, or -1 when unknown.
func ServiceTypeCode(s ServiceType) int {
	for i, candidate := range ServiceTypes {
		if candidate == s {
			return i
		}
	}
	return -1
}

// ServiceTypeFromCode maps a wire code back to a service type.
func ServiceTypeFromCode(code int) (ServiceType, error) {
	if code < 0 || code >= len(ServiceTypes) {
		return "", fmt.Errorf("unknown service type code %d", code)
	}
	return ServiceTypes[code], nil
}

// TicketStatusCode returns the wire code for s, or -1 when unknown.
func TicketStatusCode(s TicketStatus) int {
	for i, candidate := range TicketStatuses {
		if candidate == s {
			return i
		}
	}
	return -1
}

// TicketStatusFromCode maps a wire code back to a status.
func TicketStatusFromCode(code int) (TicketStatus, error) {
	if code < 0 || code >= len(TicketStatuses) {
		return "", fmt.Errorf("unknown ticket status code %d", code)
	}
	return TicketStatuses[code], nil
}
