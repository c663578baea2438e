// Package authkit is the authentication and session lifecycle core of the
// Parts for Cheap storefront clients: it establishes, persists, refreshes,
// and tears down the user's session, drives the multi-step sign-up flow,
// and gates which destinations the host UI may reach.
//
// The package is designed around one serialized state machine: [Client]
// methods are safe to call from multiple goroutines after construction
// through [Builder.Build], but at most one transition is ever in flight.
//
// # Architecture boundaries
//
// authkit is the public surface. It owns all state; the external world is
// reached only through the [AuthGateway] and [ProfileRepository]
// interfaces and the [session.Store] persistence contract. Adapters for a
// GoTrue-style identity provider and a Postgres profile store live in the
// gotrue and profilepg subpackages and never leak their transports here.
//
// # What this package must NOT do
//
//   - Render anything: the NavigationGate emits reachable destination
//     sets; screens, routing, and styling belong to the host.
//   - Talk to a concrete backend: only adapters do.
//   - Keep ambient globals: every Client is explicit process-scoped state
//     injected into whatever needs it.
package authkit
