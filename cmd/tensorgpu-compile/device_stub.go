//go:build !cuda
// +build !cuda

package main

import (
	"github.com/orneryd/tensorgpu/internal/driver"
	"github.com/orneryd/tensorgpu/internal/driver/stub"
)

const backendName = "stub (built without -tags cuda)"

func backendAvailable() bool {
	return stub.IsAvailable()
}

func openDevice(index int) (driver.Device, error) {
	return stub.NewDevice(index)
}
