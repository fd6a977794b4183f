// Package realtime implements the WebSocket hub for Sous Edge Core.
//
// Connections are authenticated at upgrade time (hardware headers or a
// bearer token) and bound to their principal for life. Two delivery
// primitives exist:
//
//   - PublishToHardware: targeted delivery to the connection(s) of one
//     hardware unit, regardless of subscriptions. Used for pairing:success,
//     which a unit must receive without knowing event names in advance.
//   - PublishToOrganization: fan-out to every connection in an organisation
//     that subscribed to the event name. The organisation filter comes from
//     the connection's authenticated principal, never from the client.
//
// Delivery is fire-and-forget and at most once. Each client has a bounded
// send buffer; when it is full the message is dropped for that client so
// a slow screen can never stall fan-out to the rest of the fleet.
//
// Hardware connections may push telemetry. Each (unit, metric) pair is
// throttled to one accepted sample per window; accepted samples go to the
// configured sink, suppressed ones vanish without feedback.
package realtime
