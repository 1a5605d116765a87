package usecase

import (
	"errors"
	"strings"
)

var (
	// ErrValidationFailed means the batch was rejected and nothing was written.
	ErrValidationFailed = errors.New("validation failed")
	// ErrInsufficientData means an asset has too little history in every tier.
	ErrInsufficientData = errors.New("insufficient price history")
	ErrUnknownSymbol    = errors.New("unknown symbol")
)

// ValidationError carries every violated check of a rejected batch.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return ErrValidationFailed.Error() + ": " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }
