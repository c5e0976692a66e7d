// Package access decides whether a caller may read a protected object.
package access

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
var ErrPasswordTooLong = errors.New("password longer than 72 bytes")

// Decision is the outcome of an access check.
type Decision int

const (
	Denied Decision = iota
	Granted
	NoPasswordRequired
)

func (d Decision) String() string {
	switch d {
	case Granted:
		return "granted"
	case NoPasswordRequired:
		return "no_password_required"
	default:
		return "denied"
	}
}

// Allowed reports whether the bytes may be served.
func (d Decision) Allowed() bool {
	return d == Granted || d == NoPasswordRequired
}

// HashPassword returns a salted bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Authorize checks supplied against passwordHash. An empty hash means the
// object is public. A wrong or empty password is Denied; there is no
// lockout, every attempt is judged alone.
func Authorize(passwordHash, supplied string) Decision {
	if passwordHash == "" {
		return NoPasswordRequired
	}
	if supplied == "" {
		return Denied
	}
	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(supplied)) != nil {
		return Denied
	}
	return Granted
}
