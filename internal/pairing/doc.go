// Package pairing implements the pairing code registry for Sous Edge Core.
//
// Pairing is how an anonymous hardware unit becomes a trusted, tenant-scoped
// device. The flow has two halves:
//
//  1. The unit requests a short-lived code for its hardware ID. The code is
//     shown on its screen (or printed on a sensor gateway label).
//  2. An organisation user types the code into the management UI. Consuming
//     the code upserts the device into the user's organisation and notifies
//     the waiting unit over the realtime hub.
//
// # Guarantees
//
//   - Codes are 6-character uppercase alphanumerics, matched case-insensitively.
//   - A code is honoured only while now < expiresAt (10 minutes by default).
//   - At most one active code exists per hardware ID. Issuing a new code
//     atomically replaces the old one (delete + insert in one transaction).
//   - Codes are single-use: consumption deletes the code.
//
// # Usage
//
//	registry := pairing.NewRegistry(pairing.NewSQLiteRepository(db), directory, hub, logger, 10*time.Minute)
//
//	issued, err := registry.Issue(ctx, "AA:BB:CC", "signage:primary", metadata)
//	dev, err := registry.Consume(ctx, issued.Code, orgID, locationID)
package pairing
