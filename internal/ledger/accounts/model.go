package accounts

import (
	"errors"
	"strings"
	"time"

	"github.com/buildledger/buildledger/internal/ledger/money"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// ValidType reports whether t is a known account type.
func ValidType(t AccountType) bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	default:
		return false
	}
}

// Account models a chart of accounts node. Codes are unique per owner and
// dotted codes ("16.1") nest under their prefix ("16").
type Account struct {
	ID        int64
	OwnerID   int64
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ParentCode returns the code one hierarchy level up, or "" at the root.
func (a Account) ParentCode() string {
	idx := strings.LastIndex(a.Code, ".")
	if idx < 0 {
		return ""
	}
	return a.Code[:idx]
}

// Balance is a derived account position as of a date. Never stored; always
// recomputed from posted journal lines.
type Balance struct {
	AccountID int64
	Debits    money.Cents
	Credits   money.Cents
	Net       money.Cents
	AsOf      time.Time
}

// CreateInput carries fields for a new account.
type CreateInput struct {
	Code     string
	Name     string
	Type     AccountType
	ParentID *int64
}

// Validate checks create input coherence.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return errors.New("accounts: code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("accounts: name required")
	}
	if !ValidType(in.Type) {
		return ErrInvalidType
	}
	return nil
}

// UpdateInput carries mutable account fields. Type is accepted only so the
// service can reject attempts to change it with a specific error.
type UpdateInput struct {
	AccountID int64
	Name      string
	IsActive  *bool
	Type      AccountType
}

var (
	// ErrAccountNotFound indicates a missing account in the owner scope.
	ErrAccountNotFound = errors.New("accounts: not found")
	// ErrDuplicateCode indicates the code is already taken within the owner scope.
	ErrDuplicateCode = errors.New("accounts: code already exists")
	// ErrTypeImmutable indicates an attempt to change an account's type.
	// Historical reports are derived from type, so it is fixed at creation.
	ErrTypeImmutable = errors.New("accounts: type cannot change after creation")
	// ErrInvalidType indicates an unknown account type.
	ErrInvalidType = errors.New("accounts: invalid type")
)
