// ABOUTME: Active bearer credential of the analyst the workspace acts for
// ABOUTME: Resolves the owner identity and the bearer value sent on outbound calls

package auth

import (
	"errors"
	"fmt"
	"sync"
)

// ErrIdentity is returned when no owner can be resolved from the active credential.
// Callers must surface it as a re-authentication instruction.
var ErrIdentity = errors.New("no resolvable identity")

// UnauthenticatedToken is sent as the bearer value when no credential is held.
const UnauthenticatedToken = "no-token"

// Credentials holds the active session's bearer token.
// The zero value is not usable; use NewCredentials.
type Credentials struct {
	mu       sync.RWMutex
	token    string
	verifier TokenVerifier
}

// NewCredentials creates a credential holder. A nil verifier reads the
// subject claim without verifying the signature.
func NewCredentials(verifier TokenVerifier, token string) *Credentials {
	if verifier == nil {
		verifier = UnverifiedSubject{}
	}
	return &Credentials{verifier: verifier, token: token}
}

// SetToken replaces the active credential (sign in / token refresh).
func (c *Credentials) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Clear drops the active credential (sign out).
func (c *Credentials) Clear() {
	c.SetToken("")
}

// BearerToken returns the value for the Authorization header.
// It never returns an empty string.
func (c *Credentials) BearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return UnauthenticatedToken
	}
	return c.token
}

// Identity resolves the owner behind the active credential.
// Every failure wraps ErrIdentity.
func (c *Credentials) Identity() (*Identity, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == "" {
		return nil, fmt.Errorf("%w: not signed in", ErrIdentity)
	}

	ownerID, err := c.Resolve(token)
	if err != nil {
		return nil, err
	}

	return &Identity{OwnerID: ownerID, Token: token}, nil
}

// Resolve returns the owner behind token without installing it.
func (c *Credentials) Resolve(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrIdentity)
	}
	ownerID, err := c.verifier.Verify(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIdentity, err)
	}
	return ownerID, nil
}

// OwnerID is a convenience wrapper around Identity.
func (c *Credentials) OwnerID() (string, error) {
	id, err := c.Identity()
	if err != nil {
		return "", err
	}
	return id.OwnerID, nil
}
