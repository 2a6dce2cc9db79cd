package repositories

import "fmt"

// StoreError is a RepositoryError for backends without a native error taxonomy.
type StoreError struct {
	Op          string
	Err         error
	NotFound    bool
	Conflict    bool
	Unavailable bool
}

// NewNotFoundError builds a not-found StoreError.
func NewNotFoundError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, NotFound: true}
}

// NewConflictError builds a conflict StoreError.
func NewConflictError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, Conflict: true}
}

// NewUnavailableError builds an unavailable StoreError.
func NewUnavailableError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, Unavailable: true}
}

func (e *StoreError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error       { return e.Err }
func (e *StoreError) IsNotFound() bool    { return e != nil && e.NotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.Conflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Unavailable }
