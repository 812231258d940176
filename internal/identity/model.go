package identity

import (
	"errors"
	"time"
)

var (
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidInput       = errors.New("invalid input")
	// ErrProvisioning wraps the gateway failure that aborted a registration.
	ErrProvisioning = errors.New("virtual account provisioning failed")
	// ErrAccountAssigned is returned when a user already holds an account number.
	ErrAccountAssigned = errors.New("account number already assigned")
)

// User represents a registered wallet owner.
type User struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  []byte
	Phone         string
	ProfileImage  string
	AccountNumber string
	BankName      string
	IsAdmin       bool
	TokenVersion  int
	CreatedAt     time.Time
}

// HasAccount reports whether a virtual account has been provisioned.
func (u User) HasAccount() bool {
	return u.AccountNumber != ""
}

// RegisterInput request structure.
type RegisterInput struct {
	Name         string `validate:"required,min=2,max=120"`
	Email        string `validate:"required,email"`
	Password     string `validate:"required,min=8,max=72"`
	Phone        string `validate:"omitempty,min=7,max=20"`
	ProfileImage string `validate:"omitempty,max=2048"`
	// BVN falls back to the configured default when empty.
	BVN string `validate:"omitempty,numeric_string,len=11"`
}
