// Package helixerr provides the file/line annotated error type used
// throughout Helix for invariant violations and validation failures.
package helixerr

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error is an error value that records where it was constructed, so a
// CRITICAL log line can point straight at the offending invariant check.
type Error struct {
	desc string
	file string
	line int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s [%s:%d]", e.desc, e.file, e.line)
}

// Errorf builds an Error from a format string, capturing the caller's
// file and line.
func Errorf(f string, args ...interface{}) *Error {
	e := &Error{desc: fmt.Sprintf(f, args...)}
	_, e.file, e.line, _ = runtime.Caller(1)
	if idx := strings.LastIndex(e.file, "/"); idx >= 0 {
		e.file = e.file[idx+1:]
	}
	return e
}

// Invariant is returned by code that detects a violated invariant
// (§7 "Invariant violation") — callers use this to distinguish a fatal
// exit-code-3 condition from ordinary errors.
type Invariant struct {
	err *Error
}

// Error implements the error interface, delegating to the wrapped Error.
func (i *Invariant) Error() string {
	return i.err.Error()
}

// Invariantf builds an Invariant error.
func Invariantf(f string, args ...interface{}) *Invariant {
	e := &Error{desc: fmt.Sprintf(f, args...)}
	_, e.file, e.line, _ = runtime.Caller(1)
	if idx := strings.LastIndex(e.file, "/"); idx >= 0 {
		e.file = e.file[idx+1:]
	}
	return &Invariant{err: e}
}

// IsInvariant reports whether err is (or wraps) an Invariant violation.
func IsInvariant(err error) bool {
	var inv *Invariant
	return errors.As(err, &inv)
}
