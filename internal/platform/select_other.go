//go:build !linux && !darwin

package platform

import (
	"ports/internal/evidence"
	"ports/internal/netstat"
	"ports/internal/proctable"
)

// Detect returns the gopsutil-backed platform.
func Detect(opts Options) Platform {
	return Platform{
		Name:      "generic",
		Sockets:   netstat.NewPsutil(),
		Processes: proctable.Psutil{},
		Evidence:  evidence.Psutil{},
	}
}
