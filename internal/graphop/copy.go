package graphop

import (
	"fmt"

	"github.com/orneryd/tensorgpu/internal/cerr"
	"github.com/orneryd/tensorgpu/internal/driver"
	"github.com/orneryd/tensorgpu/internal/dtype"
)

// HostBuffer is the host-side counterpart of a device Tensor: a plain
// float32 slice, the representation a Function node produces or consumes.
type HostBuffer struct {
	Data []float32
}

// CopyToDevice uploads a host tensor to a freshly allocated device buffer.
// It is idempotent: given an input that is already device-resident (Buffer
// already set, Host nil), it passes the tensor through unchanged rather than
// copying again — this lets the substitution pass insert CopyToDevice
// unconditionally at every host/device boundary without a redundant copy.
type CopyToDevice struct {
	dev   driver.Device
	dtype dtype.Type
}

// NewCopyToDevice builds a CopyToDevice operator for the given element type.
func NewCopyToDevice(dev driver.Device, t dtype.Type) *CopyToDevice {
	return &CopyToDevice{dev: dev, dtype: t}
}

// ProcessHost uploads host to the device, casting each element to c's
// element type. If host is nil the input is assumed already device-resident
// and in is returned unchanged.
func (c *CopyToDevice) ProcessHost(host *HostBuffer, in Tensor) (Tensor, error) {
	if host == nil {
		return in, nil
	}
	buf, err := c.dev.Alloc(c.dtype.Size(), len(host.Data))
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrAllocFailed, err)
	}
	if err := c.dev.HtoD(dtype.EncodeSlice(c.dtype, host.Data), buf); err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrLaunchFailed, err)
	}
	return Tensor{Buffer: buf, Shape: in.Shape}, nil
}

// CopyFromDevice downloads a device tensor to the host, casting each element
// back to float32. Unlike CopyToDevice it has no pass-through path: an input
// with a nil Buffer (not device-resident) is rejected with an error.
type CopyFromDevice struct {
	dev   driver.Device
	dtype dtype.Type
}

// NewCopyFromDevice builds a CopyFromDevice operator for the given element
// type.
func NewCopyFromDevice(dev driver.Device, t dtype.Type) *CopyFromDevice {
	return &CopyFromDevice{dev: dev, dtype: t}
}

// ProcessDevice downloads in's buffer to the host, synchronizing first so
// the copy observes completed device work.
func (c *CopyFromDevice) ProcessDevice(in Tensor) (*HostBuffer, error) {
	if in.Buffer == nil {
		return nil, fmt.Errorf("graphop: CopyFromDevice requires a device-resident input")
	}
	if err := c.dev.Synchronize(); err != nil {
		return nil, fmt.Errorf("%w: %v", cerr.ErrLaunchFailed, err)
	}
	raw, err := c.dev.DtoH(in.Buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cerr.ErrLaunchFailed, err)
	}
	return &HostBuffer{Data: dtype.DecodeSlice(c.dtype, raw)}, nil
}
