//go:build darwin

package platform

import (
	"ports/internal/evidence"
	"ports/internal/netstat"
	"ports/internal/proctable"
)

// Detect returns the lsof/ps/launchctl platform.
func Detect(opts Options) Platform {
	return Platform{
		Name:      "darwin",
		Sockets:   netstat.NewLsof(),
		Processes: proctable.NewPsTable(opts.ProcessTableTTL),
		Evidence:  evidence.NewLaunchd(),
	}
}
