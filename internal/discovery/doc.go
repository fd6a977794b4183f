// Package discovery implements the mDNS responder for Sous Edge Core.
//
// Kitchen hardware on the local network finds the edge box by resolving
// two reserved names over multicast DNS (224.0.0.251:5353):
//
//   - sous-edge.local          A   -> the box's primary IPv4 address
//   - _sous-api._tcp.local     SRV -> the API port, target sous-edge.local
//
// A query for either name is answered with both records in a single
// authoritative reply, so one round trip gives a unit everything it needs
// to reach the API. Queries for any other name are ignored; this is a
// fixed responder, not a general zeroconf service registry.
//
// Responses follow mDNS convention: queries from port 5353 are answered
// on the multicast group, one-shot queries from an ephemeral port are
// answered unicast to the querier.
package discovery
