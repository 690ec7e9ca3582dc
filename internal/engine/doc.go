// Package engine implements the drip automation engine: matching trigger
// events to active sequences, enrolling recipients, and advancing
// enrollments through their ordered steps on a polling cadence.
//
// The engine owns the enrollment state machine. It depends on store
// interfaces defined in this package; Postgres implementations live in
// repository/postgres/ and provider adapters in dispatch/.
package engine
