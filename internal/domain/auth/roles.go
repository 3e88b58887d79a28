package auth

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleEmployee Role = "Employee"
	RoleManager  Role = "Manager"
	RoleHR       Role = "HR"
	RoleAdmin    Role = "Admin"
)

var Roles = []Role{RoleEmployee, RoleManager, RoleHR, RoleAdmin}

func ParseRole(raw string) (Role, error) {
	value := strings.TrimSpace(raw)
	for _, role := range Roles {
		if strings.EqualFold(value, string(role)) {
			return role, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Actor is the principal performing an operation. Services receive it
// explicitly and never read identity from context.
type Actor struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

func (a Actor) IsAny(roles ...Role) bool {
	for _, role := range roles {
		if a.Role == role {
			return true
		}
	}
	return false
}
