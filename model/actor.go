package model

import "strings"

// Role is the role carried by an authenticated actor
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleReviewer Role = "REVIEWER"
)

// ParseRole normalizes a role name. CLIENT is accepted as an alias of
// REVIEWER for older clients.
func ParseRole(s string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ADMIN":
		return RoleAdmin, true
	case "REVIEWER", "CLIENT":
		return RoleReviewer, true
	default:
		return "", false
	}
}

// Actor is the identity every workflow operation runs as.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) IsAdmin() bool    { return a.Role == RoleAdmin }
func (a Actor) IsReviewer() bool { return a.Role == RoleReviewer }

// CanSee reports whether the actor may read the contract. Admins see every
// contract, reviewers only the ones assigned to them.
func (a Actor) CanSee(c *Contract) bool {
	if c == nil || a.ID == "" {
		return false
	}
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleReviewer:
		return c.ReviewerID != "" && c.ReviewerID == a.ID
	default:
		return false
	}
}

// IsReviewerOf reports whether the actor is the reviewer assigned to c.
func (a Actor) IsReviewerOf(c *Contract) bool {
	return a.Role == RoleReviewer && c != nil && c.ReviewerID != "" && c.ReviewerID == a.ID
}
