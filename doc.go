// Package authcore is the session-and-credential lifecycle core of the HR
// platform's authentication subsystem: short-lived access tokens, rotating
// server-tracked refresh tokens with reuse detection, single-use purpose-scoped
// one-time passcodes, and invite-gated transactional registration.
//
// The package is designed for stateless, horizontally scaled request handlers:
// Engine methods are safe to call from multiple goroutines after construction
// through [Builder.Build], and no in-process lock is held across a store
// round-trip. All durable mutable state lives in the credential store
// (transactional, Postgres) or the ephemeral key-value store (atomic per-key,
// Redis).
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// sentinel errors, and the collaborator contracts ([CredentialStore],
// [InviteStore], [TaskQueue]). The invariant-bearing components live in leaf
// packages: token (issuance), session (rotation and reuse detection), otp
// (one-time passcodes), password (Argon2id hashing). Reference collaborator
// implementations live in pgstore and taskq.
//
// # What this package must NOT do
//
//   - Route HTTP, render templates, or send mail. Delivery work is handed to
//     the [TaskQueue] and is best-effort.
//   - Use exceptions for expected business outcomes. Every core operation
//     returns typed sentinel errors; only infrastructure failures wrap
//     [ErrStoreUnavailable].
//   - Cache store state client-side. Every check is a fresh read.
package authcore
