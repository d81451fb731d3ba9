//go:build cuda && (linux || windows)
// +build cuda
// +build linux windows

package main

import (
	"github.com/orneryd/tensorgpu/internal/driver"
	"github.com/orneryd/tensorgpu/internal/driver/cuda"
)

const backendName = "cuda"

func backendAvailable() bool {
	return cuda.IsAvailable()
}

func openDevice(index int) (driver.Device, error) {
	return cuda.NewDevice(index)
}
