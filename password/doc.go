// Package password implements password hashing and verification with bcrypt.
//
// Hashes use the standard bcrypt modular crypt format ($2a$/$2b$) and carry
// their own cost factor, so verification works against hashes produced at any
// cost. [Bcrypt.NeedsUpgrade] reports when a stored hash was produced below
// the configured cost so the caller can re-hash on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
