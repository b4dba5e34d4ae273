package main

import "errors"

const (
	exitFatal = 1
	exitUsage = 2
)

type exitCodeError struct {
	code  int
	msg   string
	quiet bool
}

func (e *exitCodeError) Error() string {
	return e.msg
}

func (e *exitCodeError) ExitCode() int {
	return e.code
}

func (e *exitCodeError) Quiet() bool {
	return e.quiet
}

func usageError(err error) error {
	return &exitCodeError{code: exitUsage, msg: err.Error()}
}

// exitCode maps an error returned by run to a process exit status and
// reports whether the message should still be printed.
func exitCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.ExitCode(), !ec.Quiet()
	}
	return exitFatal, true
}
