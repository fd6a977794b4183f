// Package auth provides request authentication for Sous Edge Core.
//
// Two kinds of principal reach the API:
//
//   - Hardware: paired units identify themselves with x-hardware-id and
//     x-organization-id headers. The claim is only honoured when the
//     directory holds a matching online device in that organisation.
//   - Users: organisation staff present a bearer JWT (HS256) issued by the
//     identity service. This core verifies signatures and claims; it never
//     issues or revokes user tokens.
//
// Authenticators are composed into an ordered Chain with tri-state
// outcomes. The hardware authenticator runs first and treats every
// failure as "not applicable" rather than a rejection, so a request
// carrying both hardware headers and a bearer token silently falls
// through to token verification. Only the bearer authenticator can
// actively deny.
package auth
