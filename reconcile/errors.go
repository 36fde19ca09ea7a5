package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrSafetyViolation is wrapped by every *SafetyError.
	ErrSafetyViolation = errors.New("refusing unsafe remote operation")
	// ErrCalibration is wrapped by every *CalibrationError.
	ErrCalibration = errors.New("clock calibration failed")
	// ErrUncalibrated means a freshness decision needs a clock offset the
	// session does not have.
	ErrUncalibrated = errors.New("no clock offset known for server")

	ErrTargetExists = errors.New("remote target already exists")
	ErrNotConfirmed = errors.New("remote directory could not be confirmed")
	ErrPersisting   = errors.New("remote object still present after removal")
	ErrNotDirectory = errors.New("remote path exists but is not a directory")
	ErrNotFound     = errors.New("remote object not found")
)

// TransportError records a failed transport call.
type TransportError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SafetyError is returned before any remote call when an operation would
// touch the remote root or a path above it.
type SafetyError struct {
	Path   string
	Reason string
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf("refusing %q: %s", e.Path, e.Reason)
}

func (e *SafetyError) Unwrap() error { return ErrSafetyViolation }

// CalibrationError describes why a server's clock offset could not be
// measured.
type CalibrationError struct {
	Server string
	Err    error
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibrating %s: %v", e.Server, e.Err)
}

func (e *CalibrationError) Unwrap() []error { return []error{ErrCalibration, e.Err} }
