package pageio

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel error kinds, checkable with errors.Is. These are the PageIO-layer
// half of the engine's behavioural error kinds; the rest live in recordmgr
// and btree.
var (
	ErrInvalidOffset = errors.New("pageio: invalid page offset")
	ErrEndOfFile     = errors.New("pageio: read past end of file")
	ErrFreePageError = errors.New("pageio: corrupt free list")
)

// OpError wraps a sentinel with the operation and offset that triggered it.
type OpError struct {
	Op     string
	Offset int64
	Err    error
}

func (e *OpError) Error() string {
	return pkgerrors.Wrapf(e.Err, "pageio: %s at offset %d", e.Op, e.Offset).Error()
}

func (e *OpError) Unwrap() error { return e.Err }

func newOpError(op string, offset int64, err error) error {
	return &OpError{Op: op, Offset: offset, Err: err}
}

// IsInvalidOffset reports whether err is, or wraps, ErrInvalidOffset.
func IsInvalidOffset(err error) bool { return errors.Is(err, ErrInvalidOffset) }

// IsEndOfFile reports whether err is, or wraps, ErrEndOfFile.
func IsEndOfFile(err error) bool { return errors.Is(err, ErrEndOfFile) }

// IsFreePageError reports whether err is, or wraps, ErrFreePageError.
func IsFreePageError(err error) bool { return errors.Is(err, ErrFreePageError) }
