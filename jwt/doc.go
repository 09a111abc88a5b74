// Package jwt signs and verifies the engine's short-lived bearer tokens
// (verify-scope, split-code and access) with strict algorithm pinning.
package jwt
