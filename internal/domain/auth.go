package domain

// Actor identifies who performed an operation. Values come from the identity
// provider and are trusted as given.
type Actor struct {
	UserID   string
	FullName string
	Role     StaffRole
	BranchID *string
}

// SystemActor is used for operations triggered by the service itself.
var SystemActor = Actor{UserID: "system", FullName: "system", Role: StaffRoleAdmin}
