package auth

import "context"

const (
	PermKPIRead          = "kpi.read"
	PermKPIWrite         = "kpi.write"
	PermKPIProgress      = "kpi.progress"
	PermKPIReview        = "kpi.review"
	PermKPIComment       = "kpi.comment"
	PermEvidenceUpload   = "evidence.upload"
	PermEvidenceAudit    = "evidence.audit"
	PermReviewRead       = "review.read"
	PermReviewFinalize   = "review.finalize"
	PermRewardRead       = "reward.read"
	PermRewardAssign     = "reward.assign"
	PermDevPlanManage    = "devplan.manage"
	PermTemplatesRead    = "templates.read"
	PermTemplatesManage  = "templates.manage"
	PermSettingsRead     = "settings.read"
	PermSettingsWrite    = "settings.write"
	PermDashboardHR      = "dashboard.hr"
	PermDashboardTeam    = "dashboard.team"
	PermAuditRead        = "audit.read"
	PermNotificationRead = "notifications.read"
	PermUsersRead        = "users.read"
	PermTrainingManage   = "training.manage"
)

var DefaultPermissions = []string{
	PermKPIRead,
	PermKPIWrite,
	PermKPIProgress,
	PermKPIReview,
	PermKPIComment,
	PermEvidenceUpload,
	PermEvidenceAudit,
	PermReviewRead,
	PermReviewFinalize,
	PermRewardRead,
	PermRewardAssign,
	PermDevPlanManage,
	PermTemplatesRead,
	PermTemplatesManage,
	PermSettingsRead,
	PermSettingsWrite,
	PermDashboardHR,
	PermDashboardTeam,
	PermAuditRead,
	PermNotificationRead,
	PermUsersRead,
	PermTrainingManage,
}

var RolePermissions = map[Role][]string{
	RoleEmployee: {
		PermKPIRead,
		PermKPIProgress,
		PermKPIComment,
		PermEvidenceUpload,
		PermReviewRead,
		PermRewardRead,
		PermSettingsRead,
		PermNotificationRead,
	},
	RoleManager: {
		PermKPIRead,
		PermKPIWrite,
		PermKPIReview,
		PermKPIComment,
		PermEvidenceAudit,
		PermReviewRead,
		PermRewardRead,
		PermTemplatesRead,
		PermSettingsRead,
		PermDashboardTeam,
		PermNotificationRead,
	},
	RoleHR: {
		PermKPIRead,
		PermEvidenceAudit,
		PermReviewRead,
		PermReviewFinalize,
		PermRewardRead,
		PermRewardAssign,
		PermDevPlanManage,
		PermTemplatesRead,
		PermTemplatesManage,
		PermSettingsRead,
		PermDashboardHR,
		PermAuditRead,
		PermNotificationRead,
		PermUsersRead,
		PermTrainingManage,
	},
	RoleAdmin: DefaultPermissions,
}

// StaticPermissions resolves permissions from RolePermissions.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(_ context.Context, role Role, permission string) (bool, error) {
	return HasPermission(role, permission), nil
}

func HasPermission(role Role, permission string) bool {
	for _, perm := range RolePermissions[role] {
		if perm == permission {
			return true
		}
	}
	return false
}
