package domain

// ServiceCategory is the reference data for one service type.
type ServiceCategory struct {
	Type         ServiceType `yaml:"type"`
	Name         string      `yaml:"name"`
	Prefix       string      `yaml:"prefix"`
	BasePriority int         `yaml:"base_priority"`
}

// DefaultServiceCategories is used when no catalog overrides a service type.
var DefaultServiceCategories = map[ServiceType]ServiceCategory{
	ServiceDeposit:      {Type: ServiceDeposit, Name: "Deposit", Prefix: "A", BasePriority: 10},
	ServiceWithdrawal:   {Type: ServiceWithdrawal, Name: "Withdrawal", Prefix: "B", BasePriority: 10},
	ServiceLoan:         {Type: ServiceLoan, Name: "Loan", Prefix: "L", BasePriority: 20},
	ServiceConsultation: {Type: ServiceConsultation, Name: "Consultation", Prefix: "C", BasePriority: 5},
	ServiceVIP:          {Type: ServiceVIP, Name: "VIP", Prefix: "V", BasePriority: 50},
}

// DefaultSegmentBonuses adds to the base priority per customer segment.
var DefaultSegmentBonuses = map[CustomerSegment]int{
	SegmentStandard: 0,
	SegmentSenior:   15,
	SegmentPremium:  20,
	SegmentPrivate:  30,
}

// PriorityScore combines a service base priority with a segment bonus.
func PriorityScore(category ServiceCategory, segmentBonus int) int {
	return category.BasePriority + segmentBonus
}
