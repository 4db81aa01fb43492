package model

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrEvidenceTooLong marks evidence whose text exceeds MaxEvidenceTextLength
	ErrEvidenceTooLong = errors.New("evidence text too long")

	// ErrInvalidClaimType marks an unknown claim type
	ErrInvalidClaimType = errors.New("invalid claim type")
)
