package btree

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel error kinds from this layer.
var (
	errKeyNotFound      = errors.New("btree: key not found")
	errInvalidPage       = errors.New("btree: malformed page payload")
	errBTreeCreationFail = errors.New("btree: failed to materialize duplicate subtree")
)

// IsKeyNotFound reports whether err is, or wraps, the key-not-found outcome.
// This is a normal lookup miss, not a statistics-worthy failure — callers
// check it, they don't log it as an error.
func IsKeyNotFound(err error) bool { return errors.Is(err, errKeyNotFound) }

// IsBTreeCreationFail reports whether err is, or wraps, a failed attempt to
// materialize a duplicate-value subtree during appendDuplicate.
func IsBTreeCreationFail(err error) bool { return errors.Is(err, errBTreeCreationFail) }

func wrapf(op string, err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, "btree: %s", op)
}
