// Package proctable answers (pid → ppid, name) questions for the ancestry
// walker and maps socket inodes to their owning pids.
package proctable

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"

	"ports/internal/model"
)

// interpreters hide the program they run; their comm is more telling than
// the exe basename.
var interpreters = map[string]struct{}{
	"node": {}, "python": {}, "python3": {}, "ruby": {}, "perl": {},
	"php": {}, "java": {}, "bash": {}, "sh": {}, "zsh": {},
}

// ProcFS reads the process table from a procfs mount.
type ProcFS struct {
	fs procfs.FS
}

// NewProcFS opens the procfs mounted at root ("/proc" when empty).
func NewProcFS(root string) (*ProcFS, error) {
	if root == "" {
		root = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", root, err)
	}
	return &ProcFS{fs: fs}, nil
}

// Lookup resolves a single hop: the name and parent of pid.
func (p *ProcFS) Lookup(ctx context.Context, pid uint32) (model.ProcessEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.ProcessEntry{}, err
	}
	proc, err := p.fs.Proc(int(pid))
	if err != nil {
		return model.ProcessEntry{}, fmt.Errorf("process %d: %w", pid, err)
	}
	stat, err := proc.Stat()
	if err != nil {
		return model.ProcessEntry{}, fmt.Errorf("process %d stat: %w", pid, err)
	}
	return model.ProcessEntry{
		PID:  pid,
		PPID: uint32(stat.PPID),
		Name: processName(proc, stat.Comm),
	}, nil
}

func processName(proc procfs.Proc, comm string) string {
	exe, err := proc.Executable()
	if err != nil || exe == "" {
		return comm
	}
	base := filepath.Base(strings.TrimSuffix(exe, " (deleted)"))
	if _, ok := interpreters[base]; ok || strings.HasPrefix(base, "python") {
		return comm
	}
	return base
}

// SocketOwners maps every socket inode visible in /proc/<pid>/fd to the
// lowest pid holding it. Processes we may not inspect are skipped.
func (p *ProcFS) SocketOwners(ctx context.Context) (map[uint64]uint32, error) {
	procs, err := p.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	owners := make(map[uint64]uint32)
	for _, proc := range procs {
		if err := ctx.Err(); err != nil {
			return owners, err
		}
		targets, err := proc.FileDescriptorTargets()
		if err != nil {
			continue
		}
		pid := uint32(proc.PID)
		for _, target := range targets {
			inode, ok := socketInode(target)
			if !ok {
				continue
			}
			if cur, seen := owners[inode]; !seen || pid < cur {
				owners[inode] = pid
			}
		}
	}
	return owners, nil
}

// socketInode parses an fd link target of the form "socket:[12345]".
func socketInode(target string) (uint64, bool) {
	rest, ok := strings.CutPrefix(target, "socket:[")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, "]")
	if !ok {
		return 0, false
	}
	inode, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return inode, true
}

// Zombie reports whether pid is in state Z.
func (p *ProcFS) Zombie(ctx context.Context, pid uint32) (bool, error) {
	proc, err := p.fs.Proc(int(pid))
	if err != nil {
		return false, fmt.Errorf("process %d: %w", pid, err)
	}
	stat, err := proc.Stat()
	if err != nil {
		return false, fmt.Errorf("process %d stat: %w", pid, err)
	}
	return stat.State == "Z", nil
}

// Command returns the full command line of pid.
func (p *ProcFS) Command(ctx context.Context, pid uint32) (string, error) {
	proc, err := p.fs.Proc(int(pid))
	if err != nil {
		return "", fmt.Errorf("process %d: %w", pid, err)
	}
	args, err := proc.CmdLine()
	if err != nil {
		return "", fmt.Errorf("process %d cmdline: %w", pid, err)
	}
	return strings.Join(args, " "), nil
}
