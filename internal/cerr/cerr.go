// Package cerr defines the sentinel error kinds named by the compiler's
// error handling design: kernel compilation/allocation/launch failures are
// fatal, boundary type mismatches are the one soft/pass-through case.
//
// The design's position is that every non-I/O error is a bug: there is no
// retry surface. Callers wrap these sentinels with fmt.Errorf("...: %w", ...)
// for context and propagate them to whatever error channel the host program
// offers; the core itself never logs.
package cerr

import "errors"

var (
	// ErrCompileFailed indicates kernel source failed to compile to
	// PTX/SPIR. Fatal — a template bug, not a runtime condition.
	ErrCompileFailed = errors.New("cerr: kernel compilation failed")

	// ErrAllocFailed indicates a device (or pinned host) allocation could
	// not be satisfied. Fatal.
	ErrAllocFailed = errors.New("cerr: device allocation failed")

	// ErrLaunchFailed indicates a kernel launch returned an error status.
	// Fatal.
	ErrLaunchFailed = errors.New("cerr: kernel launch failed")

	// ErrDeviceUnavailable indicates no usable device/driver backend is
	// present (e.g. built without the cuda tag, or no GPU in the host).
	ErrDeviceUnavailable = errors.New("cerr: no GPU device available")

	// ErrBoundaryTypeMismatch is the one soft error: a copy operator was
	// asked to move a tensor that is already on the expected side. Callers
	// treat this as identity, not failure.
	ErrBoundaryTypeMismatch = errors.New("cerr: tensor already on requested side")
)
