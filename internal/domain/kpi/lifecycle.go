package kpi

import "kpiflow/internal/domain/auth"

type Event string

const (
	EventSubmit         Event = "submit"
	EventApprove        Event = "approve"
	EventRequestChanges Event = "request_changes"
)

// Next applies a status event. It checks the role and source state only;
// lock and ownership guards belong to Service.
//
//	Active, NeedsRevision  --submit (Employee)-->          PendingReview
//	PendingReview          --approve (Manager)-->          Approved
//	PendingReview, Active  --request_changes (Manager)-->  NeedsRevision
func Next(current Status, event Event, role auth.Role) (Status, error) {
	switch event {
	case EventSubmit:
		if role != auth.RoleEmployee {
			return "", ErrRoleNotAllowed.Withf("only employees submit kpis for review")
		}
		if current == StatusActive || current == StatusNeedsRevision {
			return StatusPendingReview, nil
		}
	case EventApprove:
		if role != auth.RoleManager {
			return "", ErrRoleNotAllowed.Withf("only managers approve kpis")
		}
		if current == StatusPendingReview {
			return StatusApproved, nil
		}
	case EventRequestChanges:
		if role != auth.RoleManager {
			return "", ErrRoleNotAllowed.Withf("only managers request changes")
		}
		if current == StatusPendingReview || current == StatusActive {
			return StatusNeedsRevision, nil
		}
	}
	return "", ErrInvalidTransition.Withf("cannot %s a kpi in status %s", event, current)
}

// ActionTag is the comment tag recorded with a manager's status message.
func ActionTag(next Status) CommentTag {
	if next == StatusNeedsRevision {
		return TagRevisionRequired
	}
	return TagInfo
}
