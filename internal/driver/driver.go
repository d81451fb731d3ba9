// Package driver defines the interface this compiler targets: the "To the
// GPU driver" contract — device/context lifecycle, buffer allocation and
// copy, NVRTC compilation, module/function loading, and kernel launch.
//
// Two implementations satisfy this interface: internal/driver/cuda (build
// tag "cuda", a real cgo binding against cudart/nvrtc/cuda) and
// internal/driver/stub (build tag "!cuda", returns cerr.ErrDeviceUnavailable
// from every method that touches the device). Package kernel and package
// graphop depend only on
// this interface, never on a concrete implementation.
package driver

import "unsafe"

// CompileOptions configures an NVRTC compilation. Arch defaults to "sm_75"
// per the target architecture — changing it is a configuration concern
// (see package config), not a design concern.
type CompileOptions struct {
	Arch         string
	IncludePaths []string
}

// PTX is compiled device assembly, opaque to callers other than LoadPTX.
type PTX []byte

// Function is a handle to a loaded, launchable kernel entry point.
type Function interface {
	// Name returns the (hash-derived) entry point name this handle was
	// loaded under.
	Name() string
}

// Buffer is a typed, contiguous device (or pinned host) allocation. A
// Buffer is owned by exactly one tensor value in the graph at any moment;
// downstream operators borrow it by reference for the duration of a single
// Process call and must not retain it afterward.
type Buffer interface {
	// Bytes returns the allocation size in bytes.
	Bytes() uint64
	// Ptr returns the raw device pointer for use as a kernel launch
	// parameter. Only valid for the lifetime of the Buffer.
	Ptr() unsafe.Pointer
}

// LaunchConfig is the grid/block configuration for a kernel launch. Every
// kernel in this compiler uses the "one thread per output element"
// convention; ForNumElems picks a block size and the minimal grid covering
// numElems threads.
type LaunchConfig struct {
	GridDimX, GridDimY, GridDimZ    uint32
	BlockDimX, BlockDimY, BlockDimZ uint32
	SharedMemBytes                  uint32
}

// ForNumElems returns the LaunchConfig covering numElems threads with one
// thread per element, using a fixed block size of 256.
func ForNumElems(numElems int) LaunchConfig {
	const blockSize = 256
	if numElems <= 0 {
		return LaunchConfig{GridDimX: 1, GridDimY: 1, GridDimZ: 1, BlockDimX: 1, BlockDimY: 1, BlockDimZ: 1}
	}
	grid := (numElems + blockSize - 1) / blockSize
	return LaunchConfig{
		GridDimX:  uint32(grid),
		GridDimY:  1,
		GridDimZ:  1,
		BlockDimX: uint32(blockSize),
		BlockDimY: 1,
		BlockDimZ: 1,
	}
}

// Device is a reference-counted handle to a single GPU context. Cloning is
// cheap (it increments a reference count); the underlying context is
// released when the last clone is dropped.
type Device interface {
	// Alloc allocates an uninitialized buffer for n elements of elemSize
	// bytes each.
	Alloc(elemSize, n int) (Buffer, error)
	// AllocZeros allocates a zero-initialized buffer.
	AllocZeros(elemSize, n int) (Buffer, error)
	// HtoD copies data from the host into an existing device buffer.
	HtoD(data []byte, buf Buffer) error
	// DtoH synchronously copies a device buffer back to the host.
	DtoH(buf Buffer) ([]byte, error)

	// HasFunc reports whether a function with the given name is already
	// loaded on this device.
	HasFunc(name string) bool
	// CompilePTX compiles CUDA C source to PTX targeting opts.Arch.
	CompilePTX(source string, opts CompileOptions) (PTX, error)
	// LoadPTX registers a compiled module under moduleName, exposing the
	// given entry point names.
	LoadPTX(ptx PTX, moduleName string, entryNames []string) error
	// GetFunc returns a handle to a previously loaded entry point.
	GetFunc(moduleName, entryName string) (Function, error)
	// Launch enqueues a kernel launch with the given parameters. Kernels
	// may run asynchronously on the device stream.
	Launch(cfg LaunchConfig, fn Function, params []unsafe.Pointer) error
	// Synchronize blocks until all enqueued work on this device completes.
	// CopyFromDevice operators call this explicitly; other operators do
	// not need to.
	Synchronize() error

	// Clone returns a new handle to the same underlying context,
	// incrementing its reference count.
	Clone() Device
	// Release decrements the context's reference count, freeing it when
	// it reaches zero.
	Release()
}
