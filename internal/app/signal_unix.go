//go:build unix

package app

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func signalProcess(pid uint32, force bool) error {
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	if err := unix.Kill(int(pid), sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("send %s to pid %d: %w", unix.SignalName(sig), pid, err)
	}
	return nil
}

// isAlive probes with signal 0; EPERM still means the pid exists.
func isAlive(pid uint32) bool {
	err := unix.Kill(int(pid), 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
