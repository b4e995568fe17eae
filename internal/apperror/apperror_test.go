package apperror

import (
	"errors"
	"fmt"
	"testing"
)

// TABLE-DRIVEN TESTS:
// One slice of cases, one loop, one assertion. Adding a case is one struct.

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("participant", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("name", "name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("participant", "Alice"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "InsufficientParticipants wraps its sentinel",
			err:       InsufficientParticipants(1),
			target:    ErrInsufficientParticipants,
			wantMatch: true,
		},
		{
			name:      "GenerationFailed wraps its sentinel",
			err:       GenerationFailed(5000),
			target:    ErrGenerationFailed,
			wantMatch: true,
		},
		{
			name:      "AlreadyRevealed is not InvalidCode",
			err:       AlreadyRevealed("Alice"),
			target:    ErrInvalidCode,
			wantMatch: false,
		},
		{
			name:      "InvalidCode is not NameNotFound",
			err:       InvalidCode("Alice"),
			target:    ErrNameNotFound,
			wantMatch: false,
		},
		{
			name:      "NameNotFound is not the generic ErrNotFound",
			err:       NameNotFound("Dave"),
			target:    ErrNotFound,
			wantMatch: false,
		},
		{
			name:      "wrapped with fmt.Errorf still matches",
			err:       fmt.Errorf("revealing: %w", AlreadyRevealed("Bob")),
			target:    ErrAlreadyRevealed,
			wantMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("participant", "abc123"),
			wantMessage: "participant not found with id abc123",
		},
		{
			name:        "InsufficientParticipants reports the count",
			err:         InsufficientParticipants(1),
			wantMessage: "need at least 2 participants, got 1",
		},
		{
			name:        "NameNotFound quotes the name",
			err:         NameNotFound("Dave"),
			wantMessage: `name "Dave" not found, check exact spelling`,
		},
		{
			name:        "InvalidCode names the giver",
			err:         InvalidCode("Alice"),
			wantMessage: "invalid secret code for Alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := AlreadyRevealed("Alice")
	if unwrapped := err.Unwrap(); unwrapped != ErrAlreadyRevealed {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrAlreadyRevealed)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("wishlist", "wishlist is too long")

	if err.Field != "wishlist" {
		t.Errorf("Field = %q, want %q", err.Field, "wishlist")
	}
}
