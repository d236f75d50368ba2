package recordmgr

import (
	"errors"

	jerrors "github.com/juju/errors"
)

// Sentinel error kinds owned by this layer.
var (
	errAlreadyManaged = errors.New("recordmgr: tree already managed")
	errNotManaged     = errors.New("recordmgr: tree not managed")
	errInvalidHeader  = errors.New("recordmgr: invalid global header")
	errCPBMismatch    = errors.New("recordmgr: copied-pages entry disagrees with its key")
)

// IsAlreadyManaged reports whether err is, or wraps, the duplicate-name
// outcome of AddTree.
func IsAlreadyManaged(err error) bool { return jerrors.Cause(err) == errAlreadyManaged }

// IsNotManaged reports whether err is, or wraps, a reference to a tree name
// recordmgr has never seen.
func IsNotManaged(err error) bool { return jerrors.Cause(err) == errNotManaged }

// wrap annotates err with op using juju/errors' Annotatef/Trace idiom.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return jerrors.Annotatef(err, "recordmgr: %s", op)
}
