package realtime

// Server-to-client event names.
const (
	// EventPairingSuccess tells a waiting hardware unit which tenant it
	// now belongs to. Delivered by hardware ID, bypassing subscriptions.
	EventPairingSuccess = "pairing:success"

	// EventDeviceUpdated notifies organisation dashboards that a device
	// record changed (pairing, heartbeat, liveness sweep).
	EventDeviceUpdated = "deviceUpdated"

	// EventOrderUpdated notifies kitchen displays and tills of order flow
	// changes pushed by the orders subsystem.
	EventOrderUpdated = "orderUpdated"

	// EventPresentationUpdated notifies signage screens that their
	// assigned presentation changed.
	EventPresentationUpdated = "presentationUpdated"
)
