package authstate

import "fmt"

// StorageError is a durable write failure. The state it carried was not
// published and must be treated as not saved.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("auth state %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DeserializationError reports a persisted state that could not be decoded.
// Store recovers from it by starting from an empty state.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("decoding auth state: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}
