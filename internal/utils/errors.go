package utils

import "fmt"

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

// Unwrap exposes the origin to errors.Is / errors.As.
func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Is matches any *AppError carrying the same code, so the sentinels below
// work with errors.Is.
func (appErr *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return appErr.Code == t.Code
	}
	return false
}

// Standard error codes for the application
const (
	// Lookup target absent
	ErrNotFound = "NOT_FOUND"
	// Primary or unique key collision
	ErrDuplicateIdentity = "DUPLICATE_IDENTITY"
	// A declared uniqueness invariant would break, e.g. (owner, name) for characters
	ErrConstraintViolation = "CONSTRAINT_VIOLATION"
	// Foreign key target absent
	ErrDanglingReference = "DANGLING_REFERENCE"
	// Active character not owned by the account
	ErrOwnershipMismatch = "OWNERSHIP_MISMATCH"

	ErrInvalidInput = "INVALID_INPUT"
	ErrDatabase     = "database_error"
)

// Sentinels for errors.Is. Only the code is compared.
var (
	NotFound            = &AppError{Code: ErrNotFound, Message: "not found"}
	DuplicateIdentity   = &AppError{Code: ErrDuplicateIdentity, Message: "duplicate identity"}
	ConstraintViolation = &AppError{Code: ErrConstraintViolation, Message: "constraint violation"}
	DanglingReference   = &AppError{Code: ErrDanglingReference, Message: "dangling reference"}
	OwnershipMismatch   = &AppError{Code: ErrOwnershipMismatch, Message: "ownership mismatch"}
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewNotFoundError(entity, id string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", entity, id),
	}
}

func NewDuplicateError(entity, id string, originalErr error) *AppError {
	return &AppError{
		Code:    ErrDuplicateIdentity,
		Message: fmt.Sprintf("%s already exists: %s", entity, id),
		Origin:  originalErr,
	}
}

func NewDanglingReferenceError(entity, id string) *AppError {
	return &AppError{
		Code:    ErrDanglingReference,
		Message: fmt.Sprintf("referenced %s does not exist: %s", entity, id),
	}
}

func NewOwnershipError(characterID, owner, username string) *AppError {
	return &AppError{
		Code:    ErrOwnershipMismatch,
		Message: fmt.Sprintf("character %s belongs to %s, not %s", characterID, owner, username),
	}
}

func NewInvalidInputError(reason string) *AppError {
	return &AppError{
		Code:    ErrInvalidInput,
		Message: "Invalid input: " + reason,
	}
}

// Helper method to check if an error is of a specific type.
// Wrapped errors are unwrapped.
func IsErrorCode(err error, code string) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsPermanent reports whether retrying the operation that produced err can
// never succeed.
func IsPermanent(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	switch appErr.Code {
	case ErrDatabase:
		return false
	default:
		return true
	}
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound:
		return 404 // http.StatusNotFound
	case ErrInvalidInput:
		return 400 // http.StatusBadRequest
	case ErrOwnershipMismatch:
		return 403 // http.StatusForbidden
	case ErrDuplicateIdentity, ErrConstraintViolation:
		return 409 // http.StatusConflict
	case ErrDanglingReference:
		return 422 // http.StatusUnprocessableEntity
	case ErrDatabase:
		return 500 // http.StatusInternalServerError
	default:
		return 500 // http.StatusInternalServerError for unknown errors
	}
}
