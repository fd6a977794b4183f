package auth

import "context"

// BearerAuthenticator verifies user JWTs issued by the identity service.
//
// Unlike the hardware authenticator it actively denies: a request that
// presents a bearer token asserts a user identity, and a bad token must
// not degrade into anonymous access.
type BearerAuthenticator struct {
	secret string
}

// NewBearerAuthenticator creates a bearer token authenticator.
func NewBearerAuthenticator(secret string) *BearerAuthenticator {
	return &BearerAuthenticator{secret: secret}
}

// Authenticate verifies the bearer token, if present.
func (a *BearerAuthenticator) Authenticate(_ context.Context, creds Credentials) (Decision, *Principal, error) {
	if creds.BearerToken == "" {
		return DecisionNotApplicable, nil, nil
	}

	claims, err := ParseToken(creds.BearerToken, a.secret)
	if err != nil {
		return DecisionDenied, nil, err
	}

	return DecisionAuthenticated, &Principal{
		Kind:           PrincipalUser,
		OrganizationID: claims.OrganizationID,
		UserID:         claims.Subject,
		Role:           claims.Role,
	}, nil
}
