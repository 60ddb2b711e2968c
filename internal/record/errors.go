package record

import (
	"errors"
	"fmt"
)

// Banner messages shown to the user. They intentionally carry no detail.
const (
	MsgInvalidCredentials = "Invalid credentials or role"
	MsgUserExists         = "User already exists"
	MsgDatabaseError      = "Database error"
	MsgBusy               = "Another request is already in progress"
	MsgUnauthenticated    = "Not signed in"
)

// ErrorCode categorizes errors returned by stores and sessions.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the addressed record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeAlreadyExists indicates an (email, role) pair is taken.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// ErrCodeInvalidCredentials indicates a login mismatch of any kind.
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"

	// ErrCodeBusy indicates an auth call was issued while another was pending.
	ErrCodeBusy ErrorCode = "BUSY"

	// ErrCodeValidation indicates malformed input.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeUnauthenticated indicates a missing or expired session.
	ErrCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"

	// ErrCodeStore indicates the backing store failed.
	ErrCodeStore ErrorCode = "STORE"
)

// Error is a categorized failure. Message is safe to show to users; Err holds
// the underlying cause, if any, for logs.
type Error struct {
	Code    ErrorCode
	Message string

	// Entity and ID identify the record for NOT_FOUND and ALREADY_EXISTS.
	Entity string
	ID     string

	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Entity != "" && e.ID != "":
		return fmt.Sprintf("%s: %s (%s=%s)", e.Code, e.Message, e.Entity, e.ID)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a missing record.
func NotFound(entity, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: entity + " not found",
		Entity:  entity,
		ID:      id,
	}
}

// AlreadyExists reports a duplicate user.
func AlreadyExists(entity, key string) *Error {
	return &Error{
		Code:    ErrCodeAlreadyExists,
		Message: MsgUserExists,
		Entity:  entity,
		ID:      key,
	}
}

// InvalidCredentials reports a failed login. The reason is never disclosed.
func InvalidCredentials() *Error {
	return &Error{Code: ErrCodeInvalidCredentials, Message: MsgInvalidCredentials}
}

// Busy reports an overlapping auth call.
func Busy() *Error {
	return &Error{Code: ErrCodeBusy, Message: MsgBusy}
}

// Unauthenticated reports a missing, invalid or expired session.
func Unauthenticated(err error) *Error {
	return &Error{Code: ErrCodeUnauthenticated, Message: MsgUnauthenticated, Err: err}
}

// StoreFailure wraps a store error behind the generic banner.
func StoreFailure(err error) *Error {
	return &Error{Code: ErrCodeStore, Message: MsgDatabaseError, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// Message returns the user-facing message for err. Errors that are not *Error
// collapse to the generic store banner.
func Message(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Message
	}
	return MsgDatabaseError
}

func IsNotFound(err error) bool           { return CodeOf(err) == ErrCodeNotFound }
func IsAlreadyExists(err error) bool      { return CodeOf(err) == ErrCodeAlreadyExists }
func IsInvalidCredentials(err error) bool { return CodeOf(err) == ErrCodeInvalidCredentials }
func IsBusy(err error) bool               { return CodeOf(err) == ErrCodeBusy }
func IsValidation(err error) bool         { return CodeOf(err) == ErrCodeValidation }
func IsUnauthenticated(err error) bool    { return CodeOf(err) == ErrCodeUnauthenticated }
func IsStoreFailure(err error) bool       { return CodeOf(err) == ErrCodeStore }
