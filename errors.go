package atomicstate

import "errors"

// Sentinel errors returned by store operations. Callers should test with
// errors.Is; returned errors wrap these with entry and scope detail.
var (
	// ErrNotFound is returned when reading or writing a name that is not
	// registered in the scope chain.
	ErrNotFound = errors.New("atomicstate: entry not found")

	// ErrConflict is returned when registering an entry or child scope
	// under a name that is already taken within the same scope.
	ErrConflict = errors.New("atomicstate: name already registered")

	// ErrReadOnly is returned when writing to a filter. Filters are
	// derived cells and only change through recomputation.
	ErrReadOnly = errors.New("atomicstate: entry is read-only")

	// ErrCycle is returned by FilterContext.Get when a computation reads
	// the cell it is computing.
	ErrCycle = errors.New("atomicstate: dependency cycle")

	// ErrClosed is returned for operations on a closed store or scope.
	ErrClosed = errors.New("atomicstate: closed")
)
