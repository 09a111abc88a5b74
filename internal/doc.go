// Package internal holds helpers private to passgate: one-time code digits
// and row identifiers.
//
// # Sub-packages
//
//   - appconfig: viper loading of server settings
//   - bootstrap: super-admin seeding
//   - flows: pure-function orchestrators behind every Engine operation
//   - httpapi: gin routes over the engine
//   - rate: Redis fixed-window request counters
//
// # What this package must NOT do
//
//   - Export types that appear in the public passgate API.
package internal
