// Package ports defines the interfaces (ports) that connect the session
// core to infrastructure adapters.
//
// In Clean Architecture / Hexagonal Architecture, ports are the boundaries
// between the application core and the outside world. They define what the
// session needs from external systems without specifying how those needs
// are fulfilled.
//
// # Port Interfaces
//
//   - [Transport]: A persistent bidirectional message connection
//   - [Logger]: Structured logging abstraction
//
// # Usage
//
// The session core (internal/session) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with concrete
// transports (WebSocket, in-memory pipe) and logging backends.
//
// This separation enables:
//   - Testing protocol logic with in-memory transports
//   - Swapping transports without changing session logic
//   - Clear boundaries and dependency direction
package ports
