//go:build cuda && (linux || windows)
// +build cuda
// +build linux windows

// Package cuda binds this compiler's driver.Device interface to the real
// NVIDIA CUDA driver, runtime and NVRTC libraries via cgo.
package cuda

/*
#cgo linux CFLAGS: -I/usr/local/cuda/include
#cgo linux LDFLAGS: -L/usr/local/cuda/lib64 -lcudart -lcuda -lnvrtc
#cgo windows CFLAGS: -I"C:/Program Files/NVIDIA GPU Computing Toolkit/CUDA/v13.0/include"
#cgo windows LDFLAGS: -L${SRCDIR}/../../../lib/cuda -lcudart -lcuda -lnvrtc

#include <cuda.h>
#include <cuda_runtime_api.h>
#include <nvrtc.h>
#include <stdlib.h>
#include <string.h>

static char cuda_last_error[512] = {0};

static void cuda_set_error(const char* msg) {
    strncpy(cuda_last_error, msg, sizeof(cuda_last_error) - 1);
}

static const char* cuda_get_last_error() {
    return cuda_last_error;
}

typedef struct {
    int device_id;
    CUcontext ctx;
    cudaStream_t stream;
} TGDevice;

TGDevice* tg_create_device(int device_id) {
    cudaError_t err = cudaSetDevice(device_id);
    if (err != cudaSuccess) {
        cuda_set_error(cudaGetErrorString(err));
        return NULL;
    }

    TGDevice* dev = (TGDevice*)malloc(sizeof(TGDevice));
    if (!dev) {
        cuda_set_error("failed to allocate device struct");
        return NULL;
    }
    dev->device_id = device_id;

    if (cuCtxGetCurrent(&dev->ctx) != CUDA_SUCCESS) {
        cuda_set_error("failed to acquire primary context");
        free(dev);
        return NULL;
    }

    err = cudaStreamCreate(&dev->stream);
    if (err != cudaSuccess) {
        cuda_set_error(cudaGetErrorString(err));
        free(dev);
        return NULL;
    }

    return dev;
}

void tg_release_device(TGDevice* dev) {
    if (dev) {
        if (dev->stream) cudaStreamDestroy(dev->stream);
        free(dev);
    }
}

void* tg_alloc(size_t bytes) {
    void* ptr = NULL;
    cudaError_t err = cudaMalloc(&ptr, bytes);
    if (err != cudaSuccess) {
        cuda_set_error(cudaGetErrorString(err));
        return NULL;
    }
    return ptr;
}

void* tg_alloc_zeros(size_t bytes) {
    void* ptr = tg_alloc(bytes);
    if (!ptr) return NULL;
    cudaError_t err = cudaMemset(ptr, 0, bytes);
    if (err != cudaSuccess) {
        cuda_set_error(cudaGetErrorString(err));
        cudaFree(ptr);
        return NULL;
    }
    return ptr;
}

void tg_free(void* ptr) {
    if (ptr) cudaFree(ptr);
}

int tg_htod(void* dst, const void* src, size_t bytes) {
    cudaError_t err = cudaMemcpy(dst, src, bytes, cudaMemcpyHostToDevice);
    if (err != cudaSuccess) {
        cuda_set_error(cudaGetErrorString(err));
        return -1;
    }
    return 0;
}

int tg_dtoh(void* dst, const void* src, size_t bytes) {
    cudaError_t err = cudaMemcpy(dst, src, bytes, cudaMemcpyDeviceToHost);
    if (err != cudaSuccess) {
        cuda_set_error(cudaGetErrorString(err));
        return -1;
    }
    return 0;
}

int tg_synchronize(TGDevice* dev) {
    cudaError_t err = cudaStreamSynchronize(dev->stream);
    if (err != cudaSuccess) {
        cuda_set_error(cudaGetErrorString(err));
        return -1;
    }
    return 0;
}

// tg_compile_ptx runs NVRTC over source and returns a malloc'd,
// NUL-terminated PTX buffer (caller frees with free()), or NULL on failure.
char* tg_compile_ptx(const char* source, const char* arch, const char** include_paths, int n_includes) {
    nvrtcProgram prog;
    nvrtcResult res = nvrtcCreateProgram(&prog, source, "kernel.cu", 0, NULL, NULL);
    if (res != NVRTC_SUCCESS) {
        cuda_set_error(nvrtcGetErrorString(res));
        return NULL;
    }

    char arch_opt[64];
    snprintf(arch_opt, sizeof(arch_opt), "--gpu-architecture=%s", arch);

    int n_opts = 1 + n_includes;
    const char** opts = (const char**)malloc(sizeof(char*) * n_opts);
    opts[0] = arch_opt;
    char** include_opts = (char**)malloc(sizeof(char*) * n_includes);
    for (int i = 0; i < n_includes; i++) {
        size_t len = strlen("--include-path=") + strlen(include_paths[i]) + 1;
        include_opts[i] = (char*)malloc(len);
        snprintf(include_opts[i], len, "--include-path=%s", include_paths[i]);
        opts[1 + i] = include_opts[i];
    }

    res = nvrtcCompileProgram(prog, n_opts, opts);

    for (int i = 0; i < n_includes; i++) free(include_opts[i]);
    free(include_opts);
    free(opts);

    if (res != NVRTC_SUCCESS) {
        size_t log_size = 0;
        nvrtcGetProgramLogSize(prog, &log_size);
        char* log = (char*)malloc(log_size + 1);
        nvrtcGetProgramLog(prog, log);
        log[log_size] = 0;
        cuda_set_error(log);
        free(log);
        nvrtcDestroyProgram(&prog);
        return NULL;
    }

    size_t ptx_size = 0;
    nvrtcGetPTXSize(prog, &ptx_size);
    char* ptx = (char*)malloc(ptx_size);
    nvrtcGetPTX(prog, ptx);
    nvrtcDestroyProgram(&prog);
    return ptx;
}

CUmodule tg_load_module(const char* ptx) {
    CUmodule mod;
    CUresult res = cuModuleLoadData(&mod, ptx);
    if (res != CUDA_SUCCESS) {
        cuda_set_error("cuModuleLoadData failed");
        return NULL;
    }
    return mod;
}

CUfunction tg_get_function(CUmodule mod, const char* name) {
    CUfunction fn;
    CUresult res = cuModuleGetFunction(&fn, mod, name);
    if (res != CUDA_SUCCESS) {
        cuda_set_error("cuModuleGetFunction failed");
        return NULL;
    }
    return fn;
}

int tg_launch(CUfunction fn, unsigned int gx, unsigned int gy, unsigned int gz,
              unsigned int bx, unsigned int by, unsigned int bz,
              unsigned int shared_mem, void** params) {
    CUresult res = cuLaunchKernel(fn, gx, gy, gz, bx, by, bz, shared_mem, NULL, params, NULL);
    if (res != CUDA_SUCCESS) {
        cuda_set_error("cuLaunchKernel failed");
        return -1;
    }
    return 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/orneryd/tensorgpu/internal/cerr"
	"github.com/orneryd/tensorgpu/internal/driver"
)

// Device is a cgo-backed CUDA device context.
type Device struct {
	ptr     *C.TGDevice
	modules map[string]C.CUmodule
	refs    *int32
	mu      *sync.Mutex
}

// NewDevice creates a new CUDA device handle for deviceID.
func NewDevice(deviceID int) (*Device, error) {
	ptr := C.tg_create_device(C.int(deviceID))
	if ptr == nil {
		msg := C.GoString(C.cuda_get_last_error())
		return nil, fmt.Errorf("%w: %s", cerr.ErrDeviceUnavailable, msg)
	}
	refs := int32(1)
	return &Device{
		ptr:     ptr,
		modules: make(map[string]C.CUmodule),
		refs:    &refs,
		mu:      &sync.Mutex{},
	}, nil
}

func (d *Device) Clone() driver.Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	*d.refs = *d.refs + 1
	return d
}

func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	*d.refs = *d.refs - 1
	if *d.refs <= 0 && d.ptr != nil {
		C.tg_release_device(d.ptr)
		d.ptr = nil
	}
}

type cudaBuffer struct {
	ptr   unsafe.Pointer
	bytes uint64
}

func (b *cudaBuffer) Bytes() uint64        { return b.bytes }
func (b *cudaBuffer) Ptr() unsafe.Pointer  { return b.ptr }

func (d *Device) Alloc(elemSize, n int) (driver.Buffer, error) {
	bytes := uint64(elemSize * n)
	ptr := C.tg_alloc(C.size_t(bytes))
	if ptr == nil {
		return nil, fmt.Errorf("%w: %s", cerr.ErrAllocFailed, C.GoString(C.cuda_get_last_error()))
	}
	return &cudaBuffer{ptr: unsafe.Pointer(ptr), bytes: bytes}, nil
}

func (d *Device) AllocZeros(elemSize, n int) (driver.Buffer, error) {
	bytes := uint64(elemSize * n)
	ptr := C.tg_alloc_zeros(C.size_t(bytes))
	if ptr == nil {
		return nil, fmt.Errorf("%w: %s", cerr.ErrAllocFailed, C.GoString(C.cuda_get_last_error()))
	}
	return &cudaBuffer{ptr: unsafe.Pointer(ptr), bytes: bytes}, nil
}

func (d *Device) HtoD(data []byte, buf driver.Buffer) error {
	if len(data) == 0 {
		return nil
	}
	ret := C.tg_htod(buf.Ptr(), unsafe.Pointer(&data[0]), C.size_t(len(data)))
	if ret != 0 {
		return fmt.Errorf("%w: %s", cerr.ErrAllocFailed, C.GoString(C.cuda_get_last_error()))
	}
	return nil
}

func (d *Device) DtoH(buf driver.Buffer) ([]byte, error) {
	out := make([]byte, buf.Bytes())
	if len(out) == 0 {
		return out, nil
	}
	ret := C.tg_dtoh(unsafe.Pointer(&out[0]), buf.Ptr(), C.size_t(len(out)))
	if ret != 0 {
		return nil, fmt.Errorf("%w: %s", cerr.ErrLaunchFailed, C.GoString(C.cuda_get_last_error()))
	}
	return out, nil
}

func (d *Device) Synchronize() error {
	if C.tg_synchronize(d.ptr) != 0 {
		return fmt.Errorf("%w: %s", cerr.ErrLaunchFailed, C.GoString(C.cuda_get_last_error()))
	}
	return nil
}

func (d *Device) HasFunc(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.modules[name]
	return ok
}

func (d *Device) CompilePTX(source string, opts driver.CompileOptions) (driver.PTX, error) {
	arch := opts.Arch
	if arch == "" {
		arch = "sm_75"
	}
	cSource := C.CString(source)
	defer C.free(unsafe.Pointer(cSource))
	cArch := C.CString(arch)
	defer C.free(unsafe.Pointer(cArch))

	cIncludes := make([]*C.char, len(opts.IncludePaths))
	for i, p := range opts.IncludePaths {
		cIncludes[i] = C.CString(p)
		defer C.free(unsafe.Pointer(cIncludes[i]))
	}
	var includesPtr **C.char
	if len(cIncludes) > 0 {
		includesPtr = &cIncludes[0]
	}

	ptx := C.tg_compile_ptx(cSource, cArch, includesPtr, C.int(len(cIncludes)))
	if ptx == nil {
		return nil, fmt.Errorf("%w: %s", cerr.ErrCompileFailed, C.GoString(C.cuda_get_last_error()))
	}
	defer C.free(unsafe.Pointer(ptx))
	return driver.PTX(C.GoString(ptx)), nil
}

func (d *Device) LoadPTX(ptx driver.PTX, moduleName string, entryNames []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.modules[moduleName]; ok {
		return nil
	}
	cPTX := C.CString(string(ptx))
	defer C.free(unsafe.Pointer(cPTX))
	mod := C.tg_load_module(cPTX)
	if mod == nil {
		return fmt.Errorf("%w: %s", cerr.ErrCompileFailed, C.GoString(C.cuda_get_last_error()))
	}
	d.modules[moduleName] = mod
	return nil
}

type cudaFunc struct {
	name string
	fn   C.CUfunction
}

func (f *cudaFunc) Name() string { return f.name }

func (d *Device) GetFunc(moduleName, entryName string) (driver.Function, error) {
	d.mu.Lock()
	mod, ok := d.modules[moduleName]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: module %q not loaded", cerr.ErrCompileFailed, moduleName)
	}
	cName := C.CString(entryName)
	defer C.free(unsafe.Pointer(cName))
	fn := C.tg_get_function(mod, cName)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", cerr.ErrCompileFailed, C.GoString(C.cuda_get_last_error()))
	}
	return &cudaFunc{name: entryName, fn: fn}, nil
}

func (d *Device) Launch(cfg driver.LaunchConfig, fn driver.Function, params []unsafe.Pointer) error {
	cf, ok := fn.(*cudaFunc)
	if !ok {
		return fmt.Errorf("%w: function handle from another driver", cerr.ErrLaunchFailed)
	}
	var paramsPtr *unsafe.Pointer
	if len(params) > 0 {
		paramsPtr = &params[0]
	}
	ret := C.tg_launch(
		cf.fn,
		C.uint(cfg.GridDimX), C.uint(cfg.GridDimY), C.uint(cfg.GridDimZ),
		C.uint(cfg.BlockDimX), C.uint(cfg.BlockDimY), C.uint(cfg.BlockDimZ),
		C.uint(cfg.SharedMemBytes),
		(*unsafe.Pointer)(paramsPtr),
	)
	if ret != 0 {
		return fmt.Errorf("%w: %s", cerr.ErrLaunchFailed, C.GoString(C.cuda_get_last_error()))
	}
	return nil
}

// IsAvailable reports whether at least one CUDA device is present.
func IsAvailable() bool {
	var count C.int
	err := C.cudaGetDeviceCount(&count)
	return err == C.cudaSuccess && count > 0
}
