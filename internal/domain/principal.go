package domain

import "time"

// Principal is one account row. Each owner kind has its own table and its
// own registry; the same email may independently exist under more than one
// kind, and those are unrelated principals.
type Principal struct {
	PrincipalID  string     `json:"id" dynamodbav:"principal_id"`
	Kind         OwnerKind  `json:"kind" dynamodbav:"kind"`
	Email        string     `json:"email" dynamodbav:"email"`
	Phone        *string    `json:"phone,omitempty" dynamodbav:"phone"`
	PasswordHash string     `json:"-" dynamodbav:"password_hash"`
	FirstName    string     `json:"first_name" dynamodbav:"first_name"`
	LastName     string     `json:"last_name" dynamodbav:"last_name"`
	Verified     bool       `json:"verified" dynamodbav:"verified"`
	Superuser    bool       `json:"-" dynamodbav:"superuser"` // admin kind only
	Enable       bool       `json:"enable" dynamodbav:"enable"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at"`
	CreatedAt    time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// RegisterRequest is the signup payload, shared by all guards.
type RegisterRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
	Phone     *string `json:"phone"`
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
}
