package domain

// Branch is the reference record for a bank branch.
type Branch struct {
	ID       string
	Name     string
	Timezone string
	Active   bool
}
