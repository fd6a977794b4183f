package auth

import (
	"context"

	"github.com/sous-kitchen/edge-core/internal/device"
	"github.com/sous-kitchen/edge-core/internal/infrastructure/logging"
)

// DeviceVerifier resolves hardware identity claims against the device
// directory. Satisfied by *device.Directory.
type DeviceVerifier interface {
	VerifyOnline(ctx context.Context, hardwareID, orgID string) (*device.Device, error)
}

// HardwareAuthenticator authenticates paired hardware units from their
// self-identification headers.
//
// It never denies. Possession of the headers is a claim, not proof; when
// the claim does not check out (unknown unit, offline unit, wrong
// organisation, directory error) the request simply proceeds without a
// hardware identity. Surfacing the failure would turn a stale header on
// a shared client into a hard outage.
type HardwareAuthenticator struct {
	verifier DeviceVerifier
	logger   *logging.Logger
}

// NewHardwareAuthenticator creates a hardware header authenticator.
func NewHardwareAuthenticator(verifier DeviceVerifier, logger *logging.Logger) *HardwareAuthenticator {
	return &HardwareAuthenticator{
		verifier: verifier,
		logger:   logger.With("component", "hardware_auth"),
	}
}

// Authenticate resolves hardware headers to a principal.
func (a *HardwareAuthenticator) Authenticate(ctx context.Context, creds Credentials) (Decision, *Principal, error) {
	if creds.HardwareID == "" || creds.OrganizationID == "" {
		return DecisionNotApplicable, nil, nil
	}

	dev, err := a.verifier.VerifyOnline(ctx, creds.HardwareID, creds.OrganizationID)
	if err != nil {
		// Silent fallback. Debug only: hardware with flaky heartbeats
		// would otherwise flood warn logs on every request.
		a.logger.Debug("hardware identity claim not honoured",
			"hardware_id", creds.HardwareID,
			"organization_id", creds.OrganizationID,
			"reason", err,
		)
		return DecisionNotApplicable, nil, nil
	}

	return DecisionAuthenticated, &Principal{
		Kind:           PrincipalHardware,
		OrganizationID: creds.OrganizationID,
		HardwareID:     dev.HardwareID,
	}, nil
}
