package dynamo

// DynamoDB attribute names used in update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldStatus       = "status"
	fieldVerifiedAt   = "verified_at"
	fieldUpdatedAt    = "updated_at"
	fieldPasswordHash = "password_hash"
	fieldVerified     = "verified"
	fieldEmail        = "email"
	fieldPhone        = "phone"
	fieldRevoked      = "revoked"
)
