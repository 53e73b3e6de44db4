// Package errors decorates errors with the file and line that produced them.
// It also re-exports the standard helpers so callers need a single import.
package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

// Sentinel creates a plain comparable error without location information, for
// use in package-level error variables.
func Sentinel(msg string) error {
	return stderrors.New(msg)
}

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// caller reports the location two frames up, i.e. the caller of New or Wrapf.
func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
