// Package domain holds the core types of the automation engine: sequences,
// steps, enrollments, recipients, and business settings.
//
// Types here carry no behavior beyond small predicates. Services and the
// engine depend on this package; it depends on nothing but the standard
// library and uuid.
package domain
