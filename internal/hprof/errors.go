package hprof

import (
	stderrors "errors"
	"fmt"

	"github.com/wroldwiedbwe/hprofkit/pkg/errors"
)

// Error codes for the seven structured error kinds the HPROF format and its
// object model can raise. Each maps onto a errors.AppError so callers can use
// errors.Is/errors.As uniformly across the whole repository, not just this
// package.
const (
	CodeBadFormat    = "HPROF_BAD_FORMAT"
	CodeOutOfBounds  = "HPROF_OUT_OF_BOUNDS"
	CodeRefError     = "HPROF_REF_ERROR"
	CodeClassNotFound = "HPROF_CLASS_NOT_FOUND"
	CodeTypeError    = "HPROF_TYPE_ERROR"
	CodeNoSuchField  = "HPROF_NO_SUCH_FIELD"
	CodeClosedSource = "HPROF_CLOSED_SOURCE"
)

// badFormat reports any violation of the file's structural invariants: bad
// magic, unknown version, duplicate name/class id, invalid boolean byte,
// invalid type tag, unknown subrecord tag, or an inconsistent length.
func badFormat(format string, args ...interface{}) error {
	return errors.New(CodeBadFormat, fmt.Sprintf(format, args...))
}

// outOfBounds reports a read past the end of the byte source, during framing
// or content access.
func outOfBounds(format string, args ...interface{}) error {
	return errors.New(CodeOutOfBounds, fmt.Sprintf(format, args...))
}

// refError reports a lookup of a name id with no Utf8 record.
func refError(format string, args ...interface{}) error {
	return errors.New(CodeRefError, fmt.Sprintf(format, args...))
}

// classNotFound reports a lookup of a class id or name with no ClassLoad record.
func classNotFound(format string, args ...interface{}) error {
	return errors.New(CodeClassNotFound, fmt.Sprintf(format, args...))
}

// typeError reports an attempted narrowing to a non-supertype, or an
// indexing/length operation on a non-array object.
func typeError(format string, args ...interface{}) error {
	return errors.New(CodeTypeError, fmt.Sprintf(format, args...))
}

// noSuchField reports a field lookup miss.
func noSuchField(format string, args ...interface{}) error {
	return errors.New(CodeNoSuchField, fmt.Sprintf(format, args...))
}

// closedSource reports a read attempted after the owning File was closed.
func closedSource() error {
	return errors.New(CodeClosedSource, "read attempted after hprof file was closed")
}

// IsBadFormat reports whether err is (or wraps) a BadFormat error.
func IsBadFormat(err error) bool { return codeIs(err, CodeBadFormat) }

// IsOutOfBounds reports whether err is (or wraps) an OutOfBounds error.
func IsOutOfBounds(err error) bool { return codeIs(err, CodeOutOfBounds) }

// IsRefError reports whether err is (or wraps) a RefError.
func IsRefError(err error) bool { return codeIs(err, CodeRefError) }

// IsClassNotFound reports whether err is (or wraps) a ClassNotFound error.
func IsClassNotFound(err error) bool { return codeIs(err, CodeClassNotFound) }

// IsTypeError reports whether err is (or wraps) a TypeError.
func IsTypeError(err error) bool { return codeIs(err, CodeTypeError) }

// IsNoSuchField reports whether err is (or wraps) a NoSuchField error.
func IsNoSuchField(err error) bool { return codeIs(err, CodeNoSuchField) }

// IsClosedSource reports whether err is (or wraps) a ClosedSource error.
func IsClosedSource(err error) bool { return codeIs(err, CodeClosedSource) }

func codeIs(err error, code string) bool {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
