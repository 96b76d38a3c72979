// Package taxonomy holds the fixed classification axes every failure is
// reduced to: Domain, Category, Severity and Source.
//
// # Axes
//
//   - Domain – subsystem of origin (SYSTEM, PARSER, VALIDATOR, ...).
//   - Category – kind of problem (SYNTAX, TYPE, RESOURCE_NOT_FOUND, ...).
//   - Severity – eight totally ordered levels, each a single bit so that
//     several severities can be combined into a Mask for filtering.
//   - Source – accountable origin (SYSTEM, USER, EXTERNAL, ...), also bit-sized.
//
// # Registry
//
// The metadata for the four axes is configuration, not code. Registry is built
// once from TOML (the embedded taxonomy.toml via Default, or a user file via
// LoadFile) and is immutable afterwards: every consumer receives the *Registry
// explicitly and may share it between goroutines without locking.
//
// Lookups by numeric code and by name are O(1). Names are matched
// case-insensitively and stored upper-case.
package taxonomy
