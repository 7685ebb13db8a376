// Package testutil provides fixtures for settlement tests: signing key
// pairs, result payload encoders for each computation kind, and complete
// signed callback frames.
package testutil
