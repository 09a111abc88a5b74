// Package flows holds the stateless orchestration behind every Engine
// operation.
//
// Each Run function takes a typed dependency struct and touches the world only
// through it. Counter mutations go through the store's mutator callbacks, so a
// flow never reads a row and writes it back in two steps.
//
// The package must not import passgate; host errors and metric IDs are
// injected through the Errors and Metrics fields.
package flows
