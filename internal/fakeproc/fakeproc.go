// Package fakeproc writes minimal procfs trees for tests.
package fakeproc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// statTail is everything after ppid in a real /proc/<pid>/stat line.
const statTail = "15174 15174 0 -1 4194304 82 0 0 0 0 0 0 0 20 0 1 0 24503 2703360 284 " +
	"18446744073709551615 94676100767744 94676100787625 140732938454864 0 0 0 0 0 0 0 0 0 17 0 0 0 0 0 0 " +
	"94676100803632 94676100805248 94676431491072 140732938457983 140732938458003 140732938458003 140732938461163 0"

// Proc describes one fake process. Zero fields are left out of the tree.
type Proc struct {
	PID     uint32
	PPID    uint32
	Comm    string
	State   string // defaults to "S"
	Exe     string // target of the exe link
	Cwd     string // target of the cwd link
	Cgroup  string // raw contents of the cgroup file
	Sockets []uint64
	Cmdline []string
}

// Write creates root/<pid>/... for every proc.
func Write(t testing.TB, root string, procs ...Proc) {
	t.Helper()
	for _, p := range procs {
		dir := filepath.Join(root, strconv.FormatUint(uint64(p.PID), 10))
		must(t, os.MkdirAll(dir, 0o755))

		state := p.State
		if state == "" {
			state = "S"
		}
		stat := fmt.Sprintf("%d (%s) %s %d %s\n", p.PID, p.Comm, state, p.PPID, statTail)
		must(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644))
		must(t, os.WriteFile(filepath.Join(dir, "comm"), []byte(p.Comm+"\n"), 0o644))

		if p.Exe != "" {
			must(t, os.Symlink(p.Exe, filepath.Join(dir, "exe")))
		}
		if p.Cwd != "" {
			must(t, os.Symlink(p.Cwd, filepath.Join(dir, "cwd")))
		}
		if p.Cgroup != "" {
			must(t, os.WriteFile(filepath.Join(dir, "cgroup"), []byte(p.Cgroup), 0o644))
		}
		if len(p.Cmdline) > 0 {
			raw := strings.Join(p.Cmdline, "\x00") + "\x00"
			must(t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte(raw), 0o644))
		}

		fdDir := filepath.Join(dir, "fd")
		must(t, os.MkdirAll(fdDir, 0o755))
		for i, inode := range p.Sockets {
			link := filepath.Join(fdDir, strconv.Itoa(i+3))
			must(t, os.Symlink(fmt.Sprintf("socket:[%d]", inode), link))
		}
	}
}

// Remove deletes a process from the tree, as if it exited.
func Remove(t testing.TB, root string, pid uint32) {
	t.Helper()
	must(t, os.RemoveAll(filepath.Join(root, strconv.FormatUint(uint64(pid), 10))))
}

func must(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("fakeproc: %v", err)
	}
}
