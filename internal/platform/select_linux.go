//go:build linux

package platform

import (
	"ports/internal/evidence"
	"ports/internal/logging"
	"ports/internal/netstat"
	"ports/internal/proctable"
)

// Detect returns the procfs-backed platform, or Unavailable when procfs
// is not mounted.
func Detect(opts Options) Platform {
	log := opts.Logger
	if log == nil {
		log = logging.WithComponent("platform")
	}
	procs, err := proctable.NewProcFS(opts.ProcfsRoot)
	if err != nil {
		log.Warn("procfs unavailable", "error", err)
		return Unavailable()
	}
	ev, err := evidence.NewProcFS(opts.ProcfsRoot)
	if err != nil {
		log.Warn("procfs evidence unavailable", "error", err)
		return Unavailable()
	}
	return Platform{
		Name:      "linux",
		Sockets:   netstat.NewProcNet(opts.ProcfsRoot),
		Processes: procs,
		Evidence:  ev,
	}
}
