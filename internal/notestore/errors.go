package notestore

import "fmt"

// StoreReadError is returned when listing notes fails.
type StoreReadError struct {
	UserID string
	Reason string
	Err    error
}

func (e *StoreReadError) Error() string { return e.Reason }
func (e *StoreReadError) Unwrap() error { return e.Err }

// StoreWriteError is returned when an insert, update or delete fails.
type StoreWriteError struct {
	Op     string
	ID     string
	Reason string
	Err    error
}

func (e *StoreWriteError) Error() string { return e.Reason }
func (e *StoreWriteError) Unwrap() error { return e.Err }

// apiError is a non-2xx answer from the row store.
type apiError struct {
	Status int
	Reason string
}

func (e *apiError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("note store: HTTP %d", e.Status)
}
