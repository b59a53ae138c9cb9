package gate

import (
	"errors"
	"fmt"
)

// AuthErrorKind classifies an access refusal.
type AuthErrorKind int

const (
	InvalidCredential AuthErrorKind = iota + 1
	NotEntitled
)

func (k AuthErrorKind) String() string {
	switch k {
	case InvalidCredential:
		return "invalid credential"
	case NotEntitled:
		return "not entitled"
	}
	return "unknown"
}

// AuthError blocks access. PaymentLink is set for NotEntitled.
type AuthError struct {
	Kind        AuthErrorKind
	PaymentLink string
	Err         error
}

func (e *AuthError) Error() string {
	switch {
	case e.Kind == NotEntitled && e.PaymentLink != "":
		return fmt.Sprintf("%s: subscription inactive, complete payment at %s", e.Kind, e.PaymentLink)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsKind reports whether err is an AuthError of kind k.
func IsKind(err error, k AuthErrorKind) bool {
	var aerr *AuthError
	return errors.As(err, &aerr) && aerr.Kind == k
}

var (
	// ErrEmailTaken is returned by Signup for an existing account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrWeakPassword is returned by Signup for passwords under four characters.
	ErrWeakPassword = errors.New("password must be at least 4 characters")
	// ErrInvalidEmail is returned by Signup for addresses without an @.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrReservedEmail is returned by Signup for the administrator address,
	// which only an operator can provision.
	ErrReservedEmail = errors.New("email is reserved")
)
