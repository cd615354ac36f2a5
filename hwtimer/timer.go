// Package hwtimer defines the narrow interface the MAC engine needs from a
// high-frequency timer peripheral (spec §2 "High-frequency timer
// abstraction", explicitly out of scope as a concrete driver): a
// free-running microsecond counter with one-shot and periodic compare
// channels, cancellation, and fine-grained adjustment. simtimer provides a
// deterministic virtual clock for tests and the example binaries.
package hwtimer

// Handle identifies a scheduled callback so it can be cancelled or
// adjusted later.
type Handle uint32

// Timer is the narrow surface the MAC engine drives. All timestamps and
// durations are microseconds on a free-running counter (spec §2: "a 1 MHz
// free-running 32-bit counter").
type Timer interface {
	// Now returns the current value of the free-running counter.
	Now() int64

	// SetOneshot arms a callback to fire at ref+offset. Using an explicit
	// reference timestamp rather than a relative "fire in N us" keeps
	// cumulative ISR latency from accumulating across chained arms (spec
	// §4.5: "set_oneshot_with_ref(base=slot_start_ts, offset=δ, cb)").
	SetOneshot(ref, offset int64, cb func(firedAtUS int64)) Handle

	// SetPeriodic arms a callback to fire every period microseconds,
	// starting period microseconds from now. Used for exactly one
	// long-lived channel: the inter-slot tick.
	SetPeriodic(period int64, cb func(firedAtUS int64)) Handle

	// Cancel disarms a previously scheduled callback. Cancelling an
	// already-fired or unknown handle is a no-op.
	Cancel(h Handle)

	// Adjust nudges a pending (not yet fired) compare match by deltaUS,
	// used for one-shot drift correction of the inter-slot periodic timer
	// (spec §4.5 "Drift correction": "shift the inter-slot compare
	// register by drift").
	Adjust(h Handle, deltaUS int64)
}
