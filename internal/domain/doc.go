// Package domain contains the core entities and value objects of the
// event/ack protocol.
//
// This package represents the innermost layer of the architecture. It has
// no dependencies on transport, serialization, or logging concerns and
// holds only the wire vocabulary and the rules attached to it.
//
// # Entities
//
//   - [Event]: An application message that must be acknowledged by the peer
//   - [Ack]: The acknowledgement for exactly one event
//   - [Fault]: A protocol violation together with its close-code mapping
//   - [Policy]: The session policy a server declares during the handshake
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Focused on protocol rules and invariants
//   - Testable without mocks or external systems
package domain
