package models

import "strings"

type Role string

const (
	RoleLearner Role = "learner"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// IsStaff reports whether the role belongs to an administrative account.
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Profile is the public face of a learner as seen by the ranking.
type Profile struct {
	LearnerID int64  `json:"learner_id"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
}

// DisplayName returns "FirstName L." format (first name + last initial).
func (p Profile) DisplayName() string {
	parts := strings.Fields(p.Name)
	if len(parts) <= 1 {
		return strings.TrimSpace(p.Name)
	}
	lastName := parts[len(parts)-1]
	return parts[0] + " " + string([]rune(lastName)[0]) + "."
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateLearnerRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	Role Role   `json:"role" validate:"omitempty,oneof=learner staff admin"`
}
