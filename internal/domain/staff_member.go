package domain

// StaffRole enumerates roles carried by identity tokens.
type StaffRole string

const (
	StaffRoleTeller     StaffRole = "TELLER"
	StaffRoleSupervisor StaffRole = "SUPERVISOR"
	StaffRoleAdmin      StaffRole = "ADMIN"
	StaffRoleKiosk      StaffRole = "KIOSK"
	StaffRoleDisplay    StaffRole = "DISPLAY"
)

// StaffMember is a user that can be bound to a counter.
type StaffMember struct {
	ID       string
	Name     string
	Email    string
	Role     StaffRole
	BranchID *string
	Active   bool
}

// Supervises reports whether r may manage counters other than its own.
func (r StaffRole) Supervises() bool {
	return r == StaffRoleSupervisor || r == StaffRoleAdmin
}

// Valid reports whether r is a known role.
func (r StaffRole) Valid() bool {
	switch r {
	case StaffRoleTeller, StaffRoleSupervisor, StaffRoleAdmin, StaffRoleKiosk, StaffRoleDisplay:
		return true
	}
	return false
}
