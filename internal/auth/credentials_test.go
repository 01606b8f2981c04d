// ABOUTME: Tests for the active credential holder
// ABOUTME: Covers the unauthenticated marker and identity resolution failures

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_BearerTokenFallsBackToMarker(t *testing.T) {
	creds := NewCredentials(nil, "")
	assert.Equal(t, UnauthenticatedToken, creds.BearerToken())

	creds.SetToken("abc")
	assert.Equal(t, "abc", creds.BearerToken())

	creds.Clear()
	assert.Equal(t, "no-token", creds.BearerToken())
}

func TestCredentials_IdentityWithoutToken(t *testing.T) {
	creds := NewCredentials(nil, "")

	_, err := creds.Identity()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIdentity))
}

func TestCredentials_IdentityWithVerifier(t *testing.T) {
	verifier := NewJWTVerifier([]byte("secret"))
	token, err := verifier.Generate("analyst-1", time.Hour)
	require.NoError(t, err)

	creds := NewCredentials(verifier, token)
	id, err := creds.Identity()
	require.NoError(t, err)
	assert.Equal(t, "analyst-1", id.OwnerID)
	assert.Equal(t, token, id.Token)

	owner, err := creds.OwnerID()
	require.NoError(t, err)
	assert.Equal(t, "analyst-1", owner)
}

func TestCredentials_InvalidTokenIsIdentityError(t *testing.T) {
	creds := NewCredentials(NewJWTVerifier([]byte("secret")), "garbage")

	_, err := creds.Identity()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIdentity)
	// The bearer value is still forwarded as-is; only identity resolution fails.
	assert.Equal(t, "garbage", creds.BearerToken())
}

func TestOwnerFromContext(t *testing.T) {
	_, err := OwnerFromContext(context.Background())
	assert.ErrorIs(t, err, ErrIdentity)

	ctx := WithIdentity(context.Background(), &Identity{OwnerID: "analyst-2"})
	owner, err := OwnerFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "analyst-2", owner)
	assert.Equal(t, "analyst-2", FromContext(ctx).OwnerID)
}

func TestCredentials_ResolveDoesNotInstall(t *testing.T) {
	verifier := NewJWTVerifier([]byte("secret"))
	current, err := verifier.Generate("analyst-1", time.Hour)
	require.NoError(t, err)
	next, err := verifier.Generate("analyst-2", time.Hour)
	require.NoError(t, err)

	creds := NewCredentials(verifier, current)
	owner, err := creds.Resolve(next)
	require.NoError(t, err)
	assert.Equal(t, "analyst-2", owner)
	assert.Equal(t, current, creds.BearerToken())

	_, err = creds.Resolve("")
	assert.ErrorIs(t, err, ErrIdentity)
	_, err = creds.Resolve("garbage")
	assert.ErrorIs(t, err, ErrIdentity)
}
