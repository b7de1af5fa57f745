package domain

import (
	"fmt"
	"time"
)

// OwnerKind is the disjoint category of principal a verification code or
// credential belongs to. The kinds share one verification mechanism but never
// any state.
type OwnerKind string

const (
	KindClient  OwnerKind = "client"
	KindWorker  OwnerKind = "worker"
	KindAdmin   OwnerKind = "admin"
	KindGeneric OwnerKind = "generic"
)

// Valid reports whether k is one of the defined owner kinds.
func (k OwnerKind) Valid() bool {
	switch k {
	case KindClient, KindWorker, KindAdmin, KindGeneric:
		return true
	}
	return false
}

// Purpose is the flow a verification code gates.
type Purpose string

const (
	PurposeAccountVerification Purpose = "account_verification"
	PurposePasswordReset       Purpose = "password_reset"
	PurposeEmailUpdate         Purpose = "email_update"
	PurposePhoneUpdate         Purpose = "phone_update"
)

// Valid reports whether p is one of the defined purposes.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeAccountVerification, PurposePasswordReset, PurposeEmailUpdate, PurposePhoneUpdate:
		return true
	}
	return false
}

// OTPStatus is the lifecycle state of a verification record.
// pending is the only state eligible for verification attempts.
type OTPStatus string

const (
	OTPPending  OTPStatus = "pending"
	OTPVerified OTPStatus = "verified"
	OTPExpired  OTPStatus = "expired"
	OTPFailed   OTPStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s OTPStatus) Terminal() bool {
	return s == OTPVerified || s == OTPExpired || s == OTPFailed
}

// OTPRecord stores one issued verification code.
// PK: scope (owner kind + owner id + purpose), SK: otp_id (ULID, so the
// newest record for a scope sorts last). Code holds AES-GCM ciphertext,
// never plaintext. A record past ExpiresAt is treated as expired on read
// even while the stored status still says pending.
type OTPRecord struct {
	OTPID       string     `json:"id" dynamodbav:"otp_id"`
	Scope       string     `json:"-" dynamodbav:"scope"`
	OwnerKind   OwnerKind  `json:"owner_kind" dynamodbav:"owner_kind"`
	OwnerID     *string    `json:"owner_id,omitempty" dynamodbav:"owner_id"`
	Identifier  string     `json:"identifier" dynamodbav:"identifier"`
	Purpose     Purpose    `json:"purpose" dynamodbav:"purpose"`
	Code        string     `json:"-" dynamodbav:"code"`
	Status      OTPStatus  `json:"status" dynamodbav:"status"`
	ExpiresAt   int64      `json:"expires_at" dynamodbav:"expires_at"` // Unix seconds
	VerifiedAt  *time.Time `json:"verified_at,omitempty" dynamodbav:"verified_at"`
	Attempts    int        `json:"attempts" dynamodbav:"attempts"`
	MaxAttempts int        `json:"max_attempts" dynamodbav:"max_attempts"`
	CreatedAt   time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// OTPScope builds the tuple key a code is issued and verified under. For
// pre-account flows ownerID is nil and the raw identifier keys the tuple.
func OTPScope(kind OwnerKind, ownerID *string, identifier string, purpose Purpose) string {
	owner := identifier
	if ownerID != nil {
		owner = *ownerID
	}
	return fmt.Sprintf("%s#%s#%s", kind, owner, purpose)
}

// Expired reports lazy expiry relative to now.
func (r *OTPRecord) Expired(now time.Time) bool {
	return now.Unix() >= r.ExpiresAt
}

// AttemptsRemaining never goes below zero.
func (r *OTPRecord) AttemptsRemaining() int {
	if r.Attempts >= r.MaxAttempts {
		return 0
	}
	return r.MaxAttempts - r.Attempts
}
