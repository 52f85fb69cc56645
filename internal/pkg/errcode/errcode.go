package errcode

const (
	ErrUnknown = 20000000 + iota
	ErrNotFound
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrEmbeddingUnavailable
	ErrDimensionMismatch
	ErrLocationRequired
)
