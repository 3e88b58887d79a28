package notifications

const (
	TypeKPISubmitted        = "kpi_submitted"
	TypeKPIApproved         = "kpi_approved"
	TypeKPIChangesRequested = "kpi_changes_requested"
	TypeReviewFinalized     = "review_finalized"
	TypeRewardAssigned      = "reward_assigned"
	TypeDevPlanReady        = "devplan_ready"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)
