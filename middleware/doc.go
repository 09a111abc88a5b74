// Package middleware holds the gin adapters in front of a passgate engine:
// access and verify-scope token guards, a per-client rate limiter and a
// request logger.
//
// Guards only decode tokens through the engine. They never mint tokens or
// touch the credential store.
package middleware
