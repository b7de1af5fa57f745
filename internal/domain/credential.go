package domain

import "time"

// Credential is one issued bearer token, bound to exactly one guard and
// principal. Its only transition is issued -> revoked.
type Credential struct {
	CredentialID string    `json:"id" dynamodbav:"credential_id"`
	Token        string    `json:"-" dynamodbav:"token"`
	Guard        OwnerKind `json:"guard" dynamodbav:"guard"`
	PrincipalID  string    `json:"principal_id" dynamodbav:"principal_id"`
	// PrincipalScope is the guard#principal_id composite the revoke-all GSI
	// queries on. Set by the store on write.
	PrincipalScope string     `json:"-" dynamodbav:"principal_scope"`
	IssuedAt       time.Time  `json:"issued_at" dynamodbav:"issued_at"`
	ExpiresAt      int64      `json:"expires_at" dynamodbav:"expires_at"` // Unix seconds
	Revoked        bool       `json:"revoked" dynamodbav:"revoked"`
	Principal      *Principal `json:"principal,omitempty" dynamodbav:"-"`
}

// Active reports whether the credential can still authenticate requests.
func (c *Credential) Active(now time.Time) bool {
	return !c.Revoked && now.Unix() < c.ExpiresAt
}
