// Package device provides the Device Directory for Sous Edge Core.
//
// The Device Directory is the central catalogue of all paired restaurant
// hardware (signage screens, kitchen display units, POS tills, sensor
// gateways). It manages device identity, liveness, and tenant scoping for
// the REST API, the realtime hub, and the hardware authentication guard.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────────┐
//	│                        Device Directory                            │
//	│                                                                    │
//	│  ┌──────────────────┐        ┌──────────────────┐                  │
//	│  │    Directory     │        │    Repository    │                  │
//	│  │  (directory.go)  │───────▶│  (repository.go) │                  │
//	│  │                  │        │                  │                  │
//	│  │ • Per-unit locks │        │ • SQLite queries │                  │
//	│  │ • Heartbeats     │        │ • JSON metadata  │                  │
//	│  │ • Liveness sweep │        │ • json_patch     │                  │
//	│  └──────────────────┘        └──────────────────┘                  │
//	│           │                          │                             │
//	└───────────│──────────────────────────│─────────────────────────────┘
//	            │                          │
//	            ▼                          ▼
//	┌──────────────────────┐   ┌──────────────────────┐
//	│  REST API / Realtime │   │   SQLite Database    │
//	│  • POST /hardware/*  │   │   (devices table)    │
//	│  • Auth guard lookup │   └──────────────────────┘
//	└──────────────────────┘
//
// # Key Types
//
//   - Device: A paired hardware unit, identified forever by its HardwareID
//   - DeviceType: Hardware classification (signage, kds, pos, gateway, sensor, watch)
//   - Status: Liveness state (online, offline)
//   - Metadata: Free-form JSON blob reported by the unit
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	directory := device.NewDirectory(repo, logger)
//
//	// Heartbeat from a paired unit
//	dev, err := directory.ApplyHeartbeat(ctx, "AA:BB:CC:DD:EE:FF", device.Metadata{
//	    "appVersion": "2.4.1",
//	})
//
//	// Verify a device-authenticated request
//	dev, err = directory.VerifyOnline(ctx, hardwareID, orgID)
//
//	// Background liveness sweeping
//	go directory.RunSweeper(ctx, 30*time.Second, 90*time.Second, nil)
//
// # Thread Safety
//
// The Directory is safe for concurrent use. Mutations are serialised per
// hardware ID so heartbeats and pairing for the same unit never interleave,
// while unrelated units proceed in parallel.
package device
