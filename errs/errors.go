// Package errs defines the sentinel errors shared by every bp4 package.
//
// Errors fall into four classes:
//   - configuration errors (ErrInvalidArgument, ErrUnsupportedType) reported where they occur
//   - I/O errors (ErrIO) marked onto failures coming from the file system
//   - format-consistency errors (ErrFormat and its refinements) that stop an engine from
//     touching a file it cannot safely extend
//   - state errors (ErrInvalidState) raised when an engine method is called out of order
//
// Classes and I/O failures are attached with errors.Mark from github.com/cockroachdb/errors,
// so callers must test them with that package's errors.Is. The standard library errors.Is
// only follows Unwrap chains and does not see marks:
//
//	import "github.com/cockroachdb/errors"
//
//	if errors.Is(err, errs.ErrFormat) {
//	    // refuse to continue with this dataset
//	}
package errs

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidArgument reports a bad parameter, selection or definition.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupportedType reports a data type the serializer cannot encode, such as compound types.
	ErrUnsupportedType = errors.New("unsupported data type")
	// ErrIO marks failures of the underlying file system.
	ErrIO = errors.New("i/o failure")
	// ErrFormat reports bytes that do not follow the BP4 layout.
	ErrFormat = errors.New("invalid bp4 format")
	// ErrEndianMismatch reports an append to a file written with the other byte order.
	ErrEndianMismatch = errors.Mark(errors.New("endianness mismatch"), ErrFormat)
	// ErrUncleanShutdown reports an index file whose active flag is still set.
	ErrUncleanShutdown = errors.Mark(errors.New("previous writer did not close the dataset"), ErrFormat)
	// ErrInvalidHeaderSize reports a header slice shorter than its fixed size.
	ErrInvalidHeaderSize = errors.Mark(errors.New("invalid header size"), ErrFormat)
	// ErrBufferOverflow reports a buffer resize beyond the configured maximum.
	ErrBufferOverflow = errors.New("buffer exceeds maximum size")
	// ErrInvalidState reports an engine call made in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid engine state")
	// ErrNotFound reports an unknown variable, attribute or step.
	ErrNotFound = errors.New("not found")
	// ErrHashCollision reports two variable names sharing a member id.
	ErrHashCollision = errors.New("member id collision")
	// ErrSelection reports a read selection outside the variable's shape.
	ErrSelection = errors.Mark(errors.New("selection out of bounds"), ErrInvalidArgument)
	// ErrClosed reports use of a closed engine or transport.
	ErrClosed = errors.New("closed")
)

// IO marks err as an I/O failure and annotates it with the failing operation.
func IO(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return errors.Mark(errors.Wrapf(err, format, args...), ErrIO)
}
