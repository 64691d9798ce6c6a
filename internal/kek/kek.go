// Package kek defines the key-encryption-key abstraction that DEK storage
// wraps and unwraps individual data-encryption keys under. The KEK itself is
// process-wide and read-only after init (spec.md §5); a Backend never sees
// more than one DEK at a time.
package kek

import "context"

// Backend wraps and unwraps data-encryption keys under a process-wide
// master key. ID is recorded alongside every wrapped key so a future
// rotation to a different backend/version can be detected.
type Backend interface {
	ID() string
	Wrap(ctx context.Context, dek []byte) ([]byte, error)
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
}
