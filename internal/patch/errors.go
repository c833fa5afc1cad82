package patch

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrNotFound is returned when a patch does not contain a file. It is the
// same sentinel as fs.ErrNotExist so both spellings work with errors.Is.
var ErrNotFound = fs.ErrNotExist

// ErrInert is returned by write operations on a patch without an archive.
var ErrInert = errors.New("patch: no archive")

// MalformedError reports a descriptor or fragment that exists but cannot be
// used, typically because it is not valid JSON.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is (or wraps) a *MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}
