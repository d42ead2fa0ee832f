package compute

import "errors"

// Error taxonomy. Wrapped errors carry context; match with errors.Is.
var (
	// ErrInvalidInput reports malformed or inconsistent input records, such
	// as a transaction that references an unknown customer.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyResult reports that no customer qualified for scoring.
	ErrEmptyResult = errors.New("empty result")

	// ErrConfiguration reports unusable parameters or segment rules.
	ErrConfiguration = errors.New("configuration error")
)
