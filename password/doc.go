// Package password hashes and verifies secrets and checks password policy.
//
// # Output formats
//
// New hashes use argon2id PHC strings by default:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// bcrypt ($2a$, $2b$, $2y$) hashes are accepted by [Multi] so rows imported
// from older systems verify unchanged, and [Multi.NeedsRehash] reports them
// for upgrade.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other passgate package.
//   - Log plaintext secrets or hash parameters.
package password
