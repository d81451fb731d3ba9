// Package faked provides an in-memory driver.Device used by tests and by
// the tensorgpu-compile demo: buffers are plain host byte slices, loaded
// modules are tracked by name, "compiling" stores the source text verbatim
// and counts the call, and "launching" records the call without running any
// GPU code.
//
// This lets package kernel and package graphop be tested for what they
// control — source generation, caching, buffer sizing, the Process contract
// — without requiring CUDA hardware.
package faked

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/orneryd/tensorgpu/internal/driver"
)

// Device is an in-memory stand-in for a CUDA device.
type Device struct {
	mu        sync.Mutex
	modules   map[string]string // moduleName -> source that was compiled
	funcs     map[string]bool   // "module/entry" -> loaded
	Launches  []LaunchRecord
	Compiles  int
}

// LaunchRecord captures one Launch call for assertions in tests.
type LaunchRecord struct {
	FuncName string
	Cfg      driver.LaunchConfig
	NumArgs  int
}

// New creates an empty fake device.
func New() *Device {
	return &Device{
		modules: make(map[string]string),
		funcs:   make(map[string]bool),
	}
}

type buffer struct {
	data []byte
}

func (b *buffer) Bytes() uint64       { return uint64(len(b.data)) }
func (b *buffer) Ptr() unsafe.Pointer {
	if len(b.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&b.data[0])
}

func (d *Device) Alloc(elemSize, n int) (driver.Buffer, error) {
	return &buffer{data: make([]byte, elemSize*n)}, nil
}

func (d *Device) AllocZeros(elemSize, n int) (driver.Buffer, error) {
	return d.Alloc(elemSize, n)
}

func (d *Device) HtoD(data []byte, buf driver.Buffer) error {
	b := buf.(*buffer)
	copy(b.data, data)
	return nil
}

func (d *Device) DtoH(buf driver.Buffer) ([]byte, error) {
	b := buf.(*buffer)
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

func (d *Device) Synchronize() error { return nil }

func (d *Device) HasFunc(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.modules[name]
	return ok
}

func (d *Device) CompilePTX(source string, opts driver.CompileOptions) (driver.PTX, error) {
	d.mu.Lock()
	d.Compiles++
	d.mu.Unlock()
	return driver.PTX(source), nil
}

func (d *Device) LoadPTX(ptx driver.PTX, moduleName string, entryNames []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modules[moduleName] = string(ptx)
	for _, e := range entryNames {
		d.funcs[moduleName+"/"+e] = true
	}
	return nil
}

type fakeFunc struct{ name string }

func (f *fakeFunc) Name() string { return f.name }

func (d *Device) GetFunc(moduleName, entryName string) (driver.Function, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.funcs[moduleName+"/"+entryName] {
		return nil, fmt.Errorf("faked: function %s/%s not loaded", moduleName, entryName)
	}
	return &fakeFunc{name: entryName}, nil
}

func (d *Device) Launch(cfg driver.LaunchConfig, fn driver.Function, params []unsafe.Pointer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Launches = append(d.Launches, LaunchRecord{FuncName: fn.Name(), Cfg: cfg, NumArgs: len(params)})
	return nil
}

func (d *Device) Clone() driver.Device { return d }
func (d *Device) Release()             {}

// Source returns the compiled source text stored for a loaded module, for
// assertions in tests.
func (d *Device) Source(moduleName string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.modules[moduleName]
	return s, ok
}
