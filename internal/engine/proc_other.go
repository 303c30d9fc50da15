//go:build !linux

package engine

import (
	"errors"
	"os"
)

var errStatusUnsupported = errors.New("status requests are only supported on linux")

func lowerPriority(int) error { return nil }

func terminate(p *os.Process) error { return p.Kill() }

func signalStatus(int) error { return errStatusUnsupported }
