// Package platform picks the socket, process and evidence readers for the
// running OS. Anything it cannot provide degrades to "unavailable".
package platform

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ports/internal/model"
)

// ErrUnavailable is returned by readers the platform does not support.
var ErrUnavailable = errors.New("not available on this platform")

// SocketReader enumerates sockets.
type SocketReader interface {
	ReadSockets(ctx context.Context, filter model.SocketFilter) ([]model.SocketRecord, error)
}

// ProcessReader resolves one hop of the process tree.
type ProcessReader interface {
	Lookup(ctx context.Context, pid uint32) (model.ProcessEntry, error)
}

// OwnerReader maps socket inodes to owning pids. Only readers whose
// sockets arrive unattributed need one.
type OwnerReader interface {
	SocketOwners(ctx context.Context) (map[uint64]uint32, error)
}

// CommandReader returns a process's full command line.
type CommandReader interface {
	Command(ctx context.Context, pid uint32) (string, error)
}

// ZombieReader tells whether a pid has exited but not yet been reaped.
type ZombieReader interface {
	Zombie(ctx context.Context, pid uint32) (bool, error)
}

// EvidenceCollector gathers classification evidence for a pid.
type EvidenceCollector interface {
	Collect(ctx context.Context, pid uint32) model.Evidence
}

// Platform bundles the readers for one OS.
type Platform struct {
	Name      string
	Sockets   SocketReader
	Processes ProcessReader
	Evidence  EvidenceCollector
}

// Options tunes platform selection.
type Options struct {
	// ProcfsRoot overrides /proc on Linux.
	ProcfsRoot string
	// ProcessTableTTL bounds reuse of a bulk process snapshot.
	ProcessTableTTL time.Duration
	Logger          *slog.Logger
}

// Owners returns the inode owner reader if the process reader has one.
func (p Platform) Owners() (OwnerReader, bool) {
	o, ok := p.Processes.(OwnerReader)
	return o, ok
}

// Commands returns the command line reader if the process reader has one.
func (p Platform) Commands() (CommandReader, bool) {
	c, ok := p.Processes.(CommandReader)
	return c, ok
}

// Zombies returns the zombie state reader if the process reader has one.
func (p Platform) Zombies() (ZombieReader, bool) {
	z, ok := p.Processes.(ZombieReader)
	return z, ok
}

// Unavailable is the conservative fallback: every read reports
// ErrUnavailable and evidence is always empty.
func Unavailable() Platform {
	return Platform{
		Name:      "unavailable",
		Sockets:   unavailableSockets{},
		Processes: unavailableProcesses{},
		Evidence:  unavailableEvidence{},
	}
}

type unavailableSockets struct{}

func (unavailableSockets) ReadSockets(context.Context, model.SocketFilter) ([]model.SocketRecord, error) {
	return nil, ErrUnavailable
}

type unavailableProcesses struct{}

func (unavailableProcesses) Lookup(context.Context, uint32) (model.ProcessEntry, error) {
	return model.ProcessEntry{}, ErrUnavailable
}

type unavailableEvidence struct{}

func (unavailableEvidence) Collect(context.Context, uint32) model.Evidence {
	return model.Evidence{Gaps: []string{"platform"}}
}
