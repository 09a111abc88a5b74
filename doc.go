// Package passgate is a credential lifecycle engine: password verification
// with tiered lockout, rotation with reuse prevention, second-factor codes
// (optionally split between an e-mail and a signed token), and a two-step
// login that ends in a signed access token.
//
// Engine methods are safe for concurrent use after [Builder.Build].
//
// # Architecture boundaries
//
// passgate is the public surface: [Engine], [Builder], [Config], errors and
// result types. Persistence is a [credential.Store]; delivery is a
// [Notifier]; token signing is a [TokenCodec]. Flow orchestration lives in
// internal/flows and is never exported.
//
// # What this package must NOT do
//
//   - Keep per-account state in process memory. Every counter lives in the
//     store and is mutated through the store's atomic mutator callbacks.
//   - Log secrets, codes, hashes or tokens.
//   - Wait on notifier delivery beyond a single Notify call.
package passgate
