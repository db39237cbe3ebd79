//go:build !unix

package app

import (
	"fmt"
	"os"
)

// Without POSIX signals both modes terminate the process outright.
func signalProcess(pid uint32, _ bool) error {
	p, err := os.FindProcess(int(pid))
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil {
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	return nil
}

func isAlive(pid uint32) bool {
	p, err := os.FindProcess(int(pid))
	if err != nil {
		return false
	}
	p.Release()
	return true
}
