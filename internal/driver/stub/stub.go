//go:build !cuda
// +build !cuda

// Package stub satisfies driver.Device when the module is built without the
// "cuda" tag (no CUDA toolkit/hardware available). Every method that would
// touch the device returns cerr.ErrDeviceUnavailable; HasFunc reports false
// and Clone/Release are no-ops. Because CompilePTX fails, constructing any
// kernel-backed graphop operator (and so Substitute's op-substitution stage)
// fails with it too; tests use internal/driver/faked instead.
package stub

import (
	"unsafe"

	"github.com/orneryd/tensorgpu/internal/cerr"
	"github.com/orneryd/tensorgpu/internal/driver"
)

// Device is the no-hardware stand-in for driver.Device.
type Device struct{}

// NewDevice always fails: build with -tags cuda on a host with a CUDA
// toolkit and GPU to get a real device.
func NewDevice(deviceID int) (*Device, error) {
	return nil, cerr.ErrDeviceUnavailable
}

func (d *Device) Alloc(elemSize, n int) (driver.Buffer, error)      { return nil, cerr.ErrDeviceUnavailable }
func (d *Device) AllocZeros(elemSize, n int) (driver.Buffer, error) { return nil, cerr.ErrDeviceUnavailable }
func (d *Device) HtoD(data []byte, buf driver.Buffer) error        { return cerr.ErrDeviceUnavailable }
func (d *Device) DtoH(buf driver.Buffer) ([]byte, error)           { return nil, cerr.ErrDeviceUnavailable }
func (d *Device) HasFunc(name string) bool                        { return false }
func (d *Device) CompilePTX(source string, opts driver.CompileOptions) (driver.PTX, error) {
	return nil, cerr.ErrDeviceUnavailable
}
func (d *Device) LoadPTX(ptx driver.PTX, moduleName string, entryNames []string) error {
	return cerr.ErrDeviceUnavailable
}
func (d *Device) GetFunc(moduleName, entryName string) (driver.Function, error) {
	return nil, cerr.ErrDeviceUnavailable
}
func (d *Device) Launch(cfg driver.LaunchConfig, fn driver.Function, params []unsafe.Pointer) error {
	return cerr.ErrDeviceUnavailable
}
func (d *Device) Synchronize() error { return cerr.ErrDeviceUnavailable }
func (d *Device) Clone() driver.Device { return d }
func (d *Device) Release()             {}

// IsAvailable always reports false: this build has no CUDA binding.
func IsAvailable() bool { return false }
