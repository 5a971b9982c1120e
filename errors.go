package omniarchive

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an Error.
type Kind int

const (
	// KindUnknown is reported by KindOf for errors that are not *Error.
	KindUnknown Kind = iota

	// KindTransport is any failure reported by the object store other
	// than a missing object on fetch.
	KindTransport

	// KindSize is a flush of an empty or oversized buffer.
	KindSize

	// KindNotFound is a version selection that matched nothing, or an
	// object missing from the store.
	KindNotFound

	// KindValidation is a malformed argument: a bad date, prefix, key,
	// seek offset or truncate size.
	KindValidation

	// KindClosed is an operation on a closed stream.
	KindClosed
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindSize:
		return "size"
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error is the error type returned by omniarchive and its backends.
// Transport errors carry the store's HTTP status and error code when known.
type Error struct {
	Kind Kind

	// Op is the operation that failed, e.g. "get", "flush", "existing".
	Op string

	Bucket string
	Key    string

	// StatusCode is the HTTP status of a transport failure, 0 if unknown.
	StatusCode int

	// Code is the store's error code, e.g. "NoSuchBucket".
	Code string

	// Msg is a human readable description.
	Msg string

	// Err is the underlying error, if any.
	Err error
}

// Sentinel errors for matching with errors.Is. They match any *Error of
// the same kind.
var (
	ErrTransport  = &Error{Kind: KindTransport}
	ErrSize       = &Error{Kind: KindSize}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrValidation = &Error{Kind: KindValidation}
	ErrClosed     = &Error{Kind: KindClosed}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("omniarchive: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	switch {
	case e.Bucket != "" && e.Key != "":
		b.WriteString(e.Bucket + "/" + e.Key + ": ")
	case e.Bucket != "":
		b.WriteString(e.Bucket + ": ")
	case e.Key != "":
		b.WriteString(e.Key + ": ")
	}
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d %s)", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Code != "" {
		b.WriteString(" " + e.Code)
	}
	if e.Msg != "" {
		b.WriteString(": " + e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind. A sentinel
// with a message only matches errors carrying the same message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Key == "" && t.Bucket == "" && t.Err == nil &&
		(t.Msg == "" || t.Msg == e.Msg)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTransport returns true if the error is a transport failure.
func IsTransport(err error) bool {
	return KindOf(err) == KindTransport
}

// IsSize returns true if the error is a flush size violation.
func IsSize(err error) bool {
	return KindOf(err) == KindSize
}

// IsNotFound returns true if the error indicates nothing matched.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsValidation returns true if the error indicates a malformed argument.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsClosed returns true if the error indicates use of a closed stream.
func IsClosed(err error) bool {
	return KindOf(err) == KindClosed
}

// IsNoSuchBucket returns true if the error reports a missing bucket.
func IsNoSuchBucket(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindTransport && (e.Code == CodeNoSuchBucket || (e.Code == "" && e.StatusCode == http.StatusNotFound))
}

// Error codes used by the bundled backends.
const (
	CodeNoSuchBucket    = "NoSuchBucket"
	CodeNoSuchKey       = "NoSuchKey"
	CodeBucketNotEmpty  = "BucketNotEmpty"
	CodeInvalidArgument = "InvalidArgument"
)

// NewTransportError returns a KindTransport error.
func NewTransportError(op, bucket, key string, status int, code string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Bucket: bucket, Key: key, StatusCode: status, Code: code, Err: err}
}

// NewNoSuchBucketError returns the error reported for a missing bucket.
func NewNoSuchBucketError(op, bucket string) *Error {
	return &Error{Kind: KindTransport, Op: op, Bucket: bucket, StatusCode: http.StatusNotFound, Code: CodeNoSuchBucket}
}

// NewNotFoundError returns the error reported for a missing object.
func NewNotFoundError(op, bucket, key string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Bucket: bucket, Key: key, StatusCode: http.StatusNotFound, Code: CodeNoSuchKey}
}

func sizeError(op, bucket, key, msg string) *Error {
	return &Error{Kind: KindSize, Op: op, Bucket: bucket, Key: key, Msg: msg}
}

func validationError(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

func notFoundError(op, bucket, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Bucket: bucket, Msg: msg}
}

func closedError(op, bucket, key string) *Error {
	return &Error{Kind: KindClosed, Op: op, Bucket: bucket, Key: key, Msg: "stream is closed"}
}

// asTransport wraps err as a transport error unless it already is an *Error.
func asTransport(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewTransportError(op, bucket, key, 0, "", err)
}
