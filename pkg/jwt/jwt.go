package jwt

import (
	"errors"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Role grants a fixed set of permissions on the admin API
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleReviewer Role = "reviewer"
	RoleViewer   Role = "viewer"
)

// Permission names one admin API capability
type Permission string

const (
	PermReadApprovals  Permission = "approvals:read"
	PermWriteApprovals Permission = "approvals:write"
	PermReadMessages   Permission = "messages:read"
	PermWriteDocuments Permission = "documents:write"
	PermReadDocuments  Permission = "documents:read"
	PermReadEvents     Permission = "events:read"
)

var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermReadApprovals, PermWriteApprovals, PermReadMessages,
		PermWriteDocuments, PermReadDocuments, PermReadEvents,
	},
	RoleReviewer: {PermReadApprovals, PermWriteApprovals, PermReadMessages, PermReadDocuments, PermReadEvents},
	RoleViewer:   {PermReadApprovals, PermReadMessages, PermReadDocuments, PermReadEvents},
}

// ParseRole returns the role named by s
func ParseRole(s string) (Role, bool) {
	role := Role(s)
	_, ok := rolePermissions[role]
	return role, ok
}

// JWTClaims represents the claims in an admin API token
type JWTClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token carries role. Admins hold every role.
func (c *JWTClaims) HasRole(role Role) bool {
	return c.Role == role || c.Role == RoleAdmin
}

// HasPermission reports whether the token's role grants permission
func (c *JWTClaims) HasPermission(permission Permission) bool {
	return slices.Contains(rolePermissions[c.Role], permission)
}
