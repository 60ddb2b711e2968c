// Package auth decides who is signed in.
//
// Service makes the stateless decisions: it verifies credentials against the
// user store and registers new accounts, each after a fixed latency that
// models a network round trip. Session wraps a Service with the state a single
// client sees: the current user, a loading flag, and the last banner message.
// Only one Login or Signup may be pending on a Session at a time; an
// overlapping call fails with record.ErrCodeBusy instead of racing.
//
// Passwords are hashed with bcrypt. Plaintext is never stored or logged.
package auth
