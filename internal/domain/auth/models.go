package auth

import "time"

type User struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Role              Role       `json:"role"`
	ManagerID         string     `json:"managerId,omitempty"`
	JobTitle          string     `json:"jobTitle,omitempty"`
	MFASecretEnc      []byte     `json:"-"`
	LatestDevPlan     string     `json:"latestDevPlan,omitempty"`
	DevPlanUpdatedAt  *time.Time `json:"devPlanUpdatedAt,omitempty"`
	TrainingCompleted bool       `json:"trainingCompleted"`
	TrainingDate      *time.Time `json:"trainingDate,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func (u User) Actor() Actor {
	return Actor{UserID: u.ID, Name: u.Name, Role: u.Role}
}

type UserFilter struct {
	Role      Role
	ManagerID string
}
