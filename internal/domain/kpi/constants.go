package kpi

type Status string

const (
	StatusActive        Status = "Active"
	StatusPendingReview Status = "PendingReview"
	StatusNeedsRevision Status = "NeedsRevision"
	StatusApproved      Status = "Approved"
)

var Statuses = []Status{StatusActive, StatusPendingReview, StatusNeedsRevision, StatusApproved}

func (s Status) Valid() bool {
	for _, candidate := range Statuses {
		if s == candidate {
			return true
		}
	}
	return false
}

type CommentTag string

const (
	TagInfo             CommentTag = "Info"
	TagRevisionRequired CommentTag = "Revision Required"
	TagBlocker          CommentTag = "Blocker"
	TagAIAudit          CommentTag = "AI Audit"
)

// UserTags are the tags a person may choose. AI Audit is written only by
// the evidence audit path.
var UserTags = []CommentTag{TagInfo, TagRevisionRequired, TagBlocker}

const (
	DefaultRubric = "Standard evaluation based on evidence provided."
	MaxWeight     = 100
)
