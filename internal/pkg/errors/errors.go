package errors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid")
	ErrUnavailable       = errors.New("provider unavailable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrLocationRequired  = errors.New("location setup required")
	ErrTooMany           = errors.New("too many requests")
	ErrInternal          = errors.New("internal")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDimensionMismatch reports whether err is the fatal dimension-consistency
// failure. Callers must never retry it: a wrong-length vector means the
// configured model no longer matches the catalog.
func IsDimensionMismatch(err error) bool {
	return errors.Is(err, ErrDimensionMismatch)
}
