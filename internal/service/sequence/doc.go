// Package sequence implements drip sequence lifecycle management.
//
// The service layer contains all business logic for creating, editing,
// activating, and deleting automation sequences and their ordered steps. It
// depends on repository interfaces defined in this package and should never
// import from api/.
//
// Repository implementations live in repository/postgres/.
package sequence
