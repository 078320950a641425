// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"regexp"

	"github.com/google/uuid"
)

// Tokens are issued by the external auth service as "MC_" followed by
// eight characters from A-Z0-9. The core only checks the shape.
var tokenPattern = regexp.MustCompile(`^MC_[A-Z0-9]{8}$`)

var ErrInvalidToken = errors.New("invalid token format")

type ClientID string

// NewClientID allocates the identifier bound to a freshly authenticated
// connection.
func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

func ValidateToken(token string) error {
	if !tokenPattern.MatchString(token) {
		return ErrInvalidToken
	}
	return nil
}
