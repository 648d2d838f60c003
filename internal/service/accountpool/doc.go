// Package accountpool owns the lifecycle of a tenant's automated identities.
//
// The pool is the only state shared between the engine loops. It tracks each
// identity's status machine (warming, active, cooldown, banned, disabled),
// its per-day action counters and cooldown window, and the live transport
// session bound to it. Callers lease an identity with Acquire or AcquireFor
// and give it back with Release; no two callers ever hold the same identity.
//
// Acquire never blocks. When nothing is eligible it reports so and the
// caller decides how to back off.
package accountpool
