package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TokenPrefix marks buildledger API tokens. The plaintext form is
// "blt_<token id>.<secret>"; only a bcrypt hash of the secret is stored.
const TokenPrefix = "blt_"

// Token is an issued API credential bound to a user and tenant scope.
type Token struct {
	ID          uuid.UUID
	OwnerID     int64
	UserID      int64
	Name        string
	SecretHash  string
	Permissions []string
	IsActive    bool
	CreatedAt   time.Time
	LastUsedAt  *time.Time
}

var (
	// ErrTokenNotFound indicates an unknown token id.
	ErrTokenNotFound = errors.New("auth: token not found")
	// ErrMalformedToken indicates a credential that does not parse.
	ErrMalformedToken = errors.New("auth: malformed token")
)
