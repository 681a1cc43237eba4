package model

import "fmt"

// Role is a portal role carried in the caller's access token.
type Role string

const (
	RoleCitizen    Role = "CITIZEN"
	RoleRTOOfficer Role = "RTO_OFFICER"
	RoleRTOAdmin   Role = "RTO_ADMIN"
	RolePolice     Role = "POLICE"
	RoleAuditor    Role = "AUDITOR"
)

var roles = []Role{RoleCitizen, RoleRTOOfficer, RoleRTOAdmin, RolePolice, RoleAuditor}

// ParseRole rejects roles outside the portal's enumeration.
func ParseRole(s string) (Role, error) {
	n := Role(normalize(s))
	for _, r := range roles {
		if r == n {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", s)
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID string
	Role   Role
}

// Authenticated reports whether the caller carries a user id.
func (c Caller) Authenticated() bool {
	return c.UserID != ""
}
