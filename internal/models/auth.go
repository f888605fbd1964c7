package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the token payload handed to the core by the external
// identity service. The core trusts it and only re-checks ownership.
type JWTClaims struct {
	OrganizationID string  `json:"org_id"`
	OrgType        OrgType `json:"org_type"`
	Subject        string  `json:"sub_name"`
	jwt.RegisteredClaims
}
