package main

// ExitCodeError wraps an error with a specific process exit code.
//
// Only usage errors carry one: every pipeline outcome exits 0 after printing
// its final status line, and other setup errors exit 1.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// exitCodeUsage is returned for invalid flags and arguments.
const exitCodeUsage = 2

func usageError(err error) error {
	return &ExitCodeError{Code: exitCodeUsage, Err: err}
}
