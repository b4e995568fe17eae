// Package apperror defines the error kinds shared by every layer of the app.
//
// Each kind is a sentinel (ErrNotFound, ErrAlreadyRevealed, ...) wrapped in an
// *AppError that carries a human-readable message. Callers branch with
// errors.Is(err, apperror.ErrXxx); handlers translate kinds into HTTP status
// codes in exactly one place (handler.writeError).
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// Round generation.
	ErrInsufficientParticipants = errors.New("insufficient participants")
	ErrGenerationFailed         = errors.New("generation failed")

	// Reveal gate. The three kinds are distinct so a caller can tell a typo
	// in the name from a wrong code from a second attempt.
	ErrNameNotFound    = errors.New("name not found")
	ErrAlreadyRevealed = errors.New("already revealed")
	ErrInvalidCode     = errors.New("invalid code")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned when credentials are missing or wrong.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// InsufficientParticipants reports that a round needs at least two people.
func InsufficientParticipants(got int) *AppError {
	return &AppError{
		Err:     ErrInsufficientParticipants,
		Message: fmt.Sprintf("need at least 2 participants, got %d", got),
	}
}

// GenerationFailed reports that the derangement search ran out of attempts.
// It is transient: retrying the whole generation re-samples randomness.
func GenerationFailed(attempts int) *AppError {
	return &AppError{
		Err:     ErrGenerationFailed,
		Message: fmt.Sprintf("could not generate assignments after %d attempts, try again", attempts),
	}
}

func NameNotFound(name string) *AppError {
	return &AppError{
		Err:     ErrNameNotFound,
		Message: fmt.Sprintf("name %q not found, check exact spelling", name),
		Field:   "name",
	}
}

func AlreadyRevealed(name string) *AppError {
	return &AppError{
		Err:     ErrAlreadyRevealed,
		Message: fmt.Sprintf("%s already revealed their match, only one attempt allowed", name),
	}
}

func InvalidCode(name string) *AppError {
	return &AppError{
		Err:     ErrInvalidCode,
		Message: fmt.Sprintf("invalid secret code for %s", name),
		Field:   "code",
	}
}
