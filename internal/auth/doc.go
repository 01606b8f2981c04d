// Package auth resolves who the workspace is acting for.
//
// # Bearer Credentials
//
// The identity provider issues HS256 JWTs whose "sub" claim is the analyst's
// owner id. The workspace holds the active token in a Credentials value:
//
//	creds := auth.NewCredentials(auth.NewJWTVerifier(secret), token)
//	creds.BearerToken() // token, or "no-token" when signed out
//	creds.Identity()    // owner id, or an error wrapping ErrIdentity
//
// Every outbound call carries "Authorization: Bearer <BearerToken()>", so a
// signed-out workspace still sends an explicit unauthenticated marker rather
// than omitting the header. Operations that need an owner (saves, listings)
// call Identity first and fail with ErrIdentity before any network I/O.
//
// # HTTP Middleware
//
// HTTPAuthMiddleware protects the records endpoints. It verifies the bearer
// token and attaches an Identity to the request context, retrievable with
// FromContext or OwnerFromContext.
package auth
