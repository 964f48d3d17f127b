package domain

// Tier determines the per-tenant schedule quota enforced by the schedule
// service (§4.3).
type Tier string

const (
	TierStandard   Tier = "standard"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// ScheduleQuota returns the maximum number of active schedules allowed for
// the tier, per spec §3.
func (t Tier) ScheduleQuota() int {
	switch t {
	case TierPremium:
		return 50
	case TierEnterprise:
		return 200
	default:
		return 10
	}
}

// Tenant is the top-level isolation boundary. Lifecycle is managed
// externally; the core only reads Tier/Active.
type Tenant struct {
	ID     string
	Name   string
	Tier   Tier
	Active bool
}
