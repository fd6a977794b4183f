package auth

import (
	"net/http"
	"strings"
)

// Role is a coarse user role carried in bearer tokens. Fine-grained
// permissions live in the identity service; this core only needs the
// organisation boundary.
type Role string

// Role constants.
const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// PrincipalKind distinguishes hardware identities from user identities.
type PrincipalKind string

// PrincipalKind constants.
const (
	PrincipalHardware PrincipalKind = "hardware"
	PrincipalUser     PrincipalKind = "user"
)

// Principal is an authenticated caller. It is ephemeral: resolved per
// request or per WebSocket connection, never persisted.
type Principal struct {
	Kind           PrincipalKind
	OrganizationID string

	// HardwareID is set for hardware principals only.
	HardwareID string

	// UserID and Role are set for user principals only.
	UserID string
	Role   Role
}

// IsHardware reports whether the principal is a hardware unit.
func (p *Principal) IsHardware() bool {
	return p != nil && p.Kind == PrincipalHardware
}

// UnverifiedHardware builds a principal for a hardware unit that has no
// device record yet. A unit learns its organisation through pairing, so
// its realtime connection must exist before verification is possible.
// The empty OrganizationID keeps such principals out of org-scoped
// fan-out; they can only receive hardware-targeted events.
func UnverifiedHardware(hardwareID string) *Principal {
	return &Principal{Kind: PrincipalHardware, HardwareID: hardwareID}
}

// Header names for hardware self-identification.
const (
	HeaderHardwareID     = "x-hardware-id"
	HeaderOrganizationID = "x-organization-id"
)

// Credentials are the raw identity claims extracted from a request before
// any verification.
type Credentials struct {
	HardwareID     string
	OrganizationID string
	BearerToken    string
}

// CredentialsFromRequest extracts identity claims from an HTTP request.
//
// Hardware headers are scrubbed: empty strings and the literal strings
// "undefined" and "null" (what a JavaScript client serialises when its
// config was never set) are treated as absent.
//
// The bearer token is read from the Authorization header, falling back to
// a ?token= query parameter for clients that cannot set headers on a
// WebSocket upgrade (browsers).
func CredentialsFromRequest(r *http.Request) Credentials {
	creds := Credentials{
		HardwareID:     scrubHeader(r.Header.Get(HeaderHardwareID)),
		OrganizationID: scrubHeader(r.Header.Get(HeaderOrganizationID)),
	}

	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(authz) > len(prefix) && strings.EqualFold(authz[:len(prefix)], prefix) {
		creds.BearerToken = strings.TrimSpace(authz[len(prefix):])
	}
	if creds.BearerToken == "" {
		creds.BearerToken = r.URL.Query().Get("token")
	}

	return creds
}

// scrubHeader normalises a header value, dropping junk sentinel strings.
func scrubHeader(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "", "undefined", "null":
		return ""
	}
	return v
}
