package auth

import "context"

// Decision is the tri-state outcome of one authenticator.
type Decision int

// Decision values.
const (
	// DecisionNotApplicable means the authenticator's credentials were
	// absent or unverifiable; the chain moves on to the next one.
	DecisionNotApplicable Decision = iota

	// DecisionAuthenticated means a principal was established.
	DecisionAuthenticated

	// DecisionDenied means credentials were presented and actively
	// rejected; the chain stops.
	DecisionDenied
)

// Authenticator attempts to establish a principal from request credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (Decision, *Principal, error)
}

// Chain runs authenticators in order until one authenticates or denies.
//
// Ordering matters: the hardware authenticator goes first and never
// denies, so hardware headers that fail verification degrade into an
// anonymous request that the bearer authenticator may still rescue.
type Chain struct {
	authenticators []Authenticator
}

// NewChain builds an authenticator chain. Order is significant.
func NewChain(authenticators ...Authenticator) *Chain {
	return &Chain{authenticators: authenticators}
}

// Authenticate resolves a principal for the given credentials.
//
// Returns ErrUnauthenticated when every authenticator passes, and the
// denying authenticator's error when one denies.
func (c *Chain) Authenticate(ctx context.Context, creds Credentials) (*Principal, error) {
	for _, a := range c.authenticators {
		decision, principal, err := a.Authenticate(ctx, creds)
		switch decision {
		case DecisionAuthenticated:
			return principal, nil
		case DecisionDenied:
			if err == nil {
				err = ErrUnauthenticated
			}
			return nil, err
		case DecisionNotApplicable:
			// try the next authenticator
		}
	}
	return nil, ErrUnauthenticated
}
