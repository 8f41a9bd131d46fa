package titankv

import "fmt"

// Kind classifies the errors titankv can return. It mirrors the RetCode
// pattern used for the store-level errors this package was grown out of,
// trimmed down to the taxonomy this engine actually needs.
type Kind uint8

const (
	KindInvalidKey Kind = iota
	KindNotFound
	KindCorruptLog
	KindIOError
	KindDecompressionError
	KindDecompressionTooLarge
	KindWrongType
)

func (k Kind) String() string {
	switch k {
	case KindInvalidKey:
		return "InvalidKey"
	case KindNotFound:
		return "NotFound"
	case KindCorruptLog:
		return "CorruptLog"
	case KindIOError:
		return "IoError"
	case KindDecompressionError:
		return "DecompressionError"
	case KindDecompressionTooLarge:
		return "DecompressionTooLarge"
	case KindWrongType:
		return "WrongType"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every titankv operation that can fail.
// It carries a Kind for programmatic dispatch and wraps the underlying cause
// (if any) so errors.Is/errors.As still reach filesystem or compression
// errors from the os/io layer.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("titankv (%s): %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("titankv (%s): %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrInvalidKey) and friends to match by Kind alone,
// ignoring Msg/Err, since callers compare against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Sentinel errors. Compare with errors.Is, e.g. errors.Is(err, titankv.ErrWrongType).
var (
	ErrInvalidKey            = newError(KindInvalidKey, "key must not be empty")
	ErrNotFound              = newError(KindNotFound, "key not found")
	ErrCorruptLog            = newError(KindCorruptLog, "wal record is malformed")
	ErrWrongType             = newError(KindWrongType, "key is bound to a different collection type")
	ErrDecompressionTooLarge = newError(KindDecompressionTooLarge, "decompressed size exceeds configured cap")
	ErrUnknownSize           = newError(KindDecompressionError, "compressed frame does not declare its decompressed size")
	ErrCorruptPayload        = newError(KindDecompressionError, "compressed frame is malformed")
)

func ioErrorf(op string, err error) *Error {
	return wrapError(KindIOError, op, err)
}
