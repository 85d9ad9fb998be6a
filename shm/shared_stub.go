//go:build !linux

package shm

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("shm: shared plane requires linux")

// Create is unsupported off linux.
func Create(numInstances int) (*Plane, error) { return nil, errUnsupported }

// Attach is unsupported off linux.
func Attach(statsFile, sumsFile *os.File) (*Plane, error) { return nil, errUnsupported }

// Close is a no-op off linux.
func (p *Plane) Close() error { return nil }
