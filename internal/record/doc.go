// Package record defines the entities held by the record store: users,
// medications, and the adherence figures derived from them.
//
// Users and medications are append-only. The only in-place mutation is the
// taken/lastTaken pair on a medication. Errors surfaced by stores and the
// session layer are *Error values carrying an ErrorCode, so callers can branch
// with IsNotFound, IsAlreadyExists and friends without string matching.
package record
