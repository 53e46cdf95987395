// Package core defines the shared language of the casegrid system.
//
// This package contains:
//   - Domain entities (Model, VarSet, Case, ResultRow)
//   - Service interfaces (Store)
//   - The typed error kinds of the pipeline
//
// The Golden Rule: pkg/core imports only the stdlib. All other packages
// depend on core, not the reverse.
package core
