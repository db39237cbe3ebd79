package proctable

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ports/internal/fakeproc"
	"ports/internal/model"
)

func newFakeProcFS(t *testing.T, procs ...fakeproc.Proc) *ProcFS {
	t.Helper()
	root := t.TempDir()
	fakeproc.Write(t, root, procs...)
	fs, err := NewProcFS(root)
	require.NoError(t, err)
	return fs
}

func TestProcFSLookup(t *testing.T) {
	fs := newFakeProcFS(t,
		fakeproc.Proc{PID: 1, PPID: 0, Comm: "systemd", Exe: "/usr/lib/systemd/systemd"},
		fakeproc.Proc{PID: 200, PPID: 1, Comm: "nginx", Exe: "/usr/sbin/nginx (deleted)"},
		fakeproc.Proc{PID: 300, PPID: 200, Comm: "my-worker", Exe: "/usr/bin/node"},
		fakeproc.Proc{PID: 400, PPID: 1, Comm: "app.py", Exe: "/usr/bin/python3.12"},
		fakeproc.Proc{PID: 500, PPID: 1, Comm: "kworker/0:1"},
	)
	ctx := context.Background()

	cases := []struct {
		pid  uint32
		want model.ProcessEntry
	}{
		{1, model.ProcessEntry{PID: 1, PPID: 0, Name: "systemd"}},
		{200, model.ProcessEntry{PID: 200, PPID: 1, Name: "nginx"}},
		{300, model.ProcessEntry{PID: 300, PPID: 200, Name: "my-worker"}},
		{400, model.ProcessEntry{PID: 400, PPID: 1, Name: "app.py"}},
		{500, model.ProcessEntry{PID: 500, PPID: 1, Name: "kworker/0:1"}},
	}
	for _, tc := range cases {
		got, err := fs.Lookup(ctx, tc.pid)
		require.NoError(t, err, "pid %d", tc.pid)
		assert.Equal(t, tc.want, got)
	}

	_, err := fs.Lookup(ctx, 999)
	assert.Error(t, err)
}

func TestProcFSSocketOwners(t *testing.T) {
	fs := newFakeProcFS(t,
		fakeproc.Proc{PID: 10, PPID: 1, Comm: "nginx", Sockets: []uint64{111, 222}},
		fakeproc.Proc{PID: 11, PPID: 10, Comm: "nginx", Sockets: []uint64{111}},
		fakeproc.Proc{PID: 12, PPID: 1, Comm: "redis", Sockets: []uint64{333}},
	)
	owners, err := fs.SocketOwners(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[uint64]uint32{111: 10, 222: 10, 333: 12}, owners)
}

func TestProcFSCommand(t *testing.T) {
	fs := newFakeProcFS(t, fakeproc.Proc{PID: 42, PPID: 1, Comm: "node", Cmdline: []string{"node", "server.js", "--port", "3000"}})
	cmd, err := fs.Command(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "node server.js --port 3000", cmd)
}

func TestSocketInode(t *testing.T) {
	inode, ok := socketInode("socket:[12345]")
	assert.True(t, ok)
	assert.Equal(t, uint64(12345), inode)

	for _, target := range []string{"pipe:[1]", "/dev/null", "socket:[x]", "socket:[12"} {
		_, ok := socketInode(target)
		assert.False(t, ok, target)
	}
}

const psOutput = `    1     0 /sbin/launchd
  312     1 /usr/sbin/nginx
 4242   980 /Applications/Visual Studio Code.app/Contents/MacOS/Electron
  980     1 zsh
garbage line here
`

func TestParsePs(t *testing.T) {
	table := ParsePs([]byte(psOutput))
	assert.Len(t, table, 4)
	assert.Equal(t, model.ProcessEntry{PID: 4242, PPID: 980, Name: "Electron"}, table[4242])
	assert.Equal(t, "launchd", table[1].Name)
}

func TestPsTableSnapshotReuse(t *testing.T) {
	var calls atomic.Int32
	clock := time.Unix(0, 0)
	table := NewPsTable(5 * time.Second)
	table.now = func() time.Time { return clock }
	table.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if strings.Contains(strings.Join(args, " "), "-p") {
			return []byte(" 777 1 late\n"), nil
		}
		calls.Add(1)
		return []byte(psOutput), nil
	}
	ctx := context.Background()

	require.NoError(t, table.Prepare(ctx))
	for _, pid := range []uint32{1, 312, 980} {
		_, err := table.Lookup(ctx, pid)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	entry, err := table.Lookup(ctx, 777)
	require.NoError(t, err)
	assert.Equal(t, "late", entry.Name)
	assert.Equal(t, int32(1), calls.Load())

	clock = clock.Add(6 * time.Second)
	_, err = table.Lookup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPsTableMissingProcess(t *testing.T) {
	table := NewPsTable(time.Second)
	table.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if strings.Contains(strings.Join(args, " "), "-p") {
			return nil, errors.New("exit status 1")
		}
		return []byte(psOutput), nil
	}
	_, err := table.Lookup(context.Background(), 31337)
	assert.Error(t, err)
}

func TestProcFSZombie(t *testing.T) {
	fs := newFakeProcFS(t,
		fakeproc.Proc{PID: 50, PPID: 1, Comm: "worker"},
		fakeproc.Proc{PID: 51, PPID: 50, Comm: "defunct", State: "Z"},
	)
	ctx := context.Background()

	z, err := fs.Zombie(ctx, 51)
	require.NoError(t, err)
	assert.True(t, z)

	z, err = fs.Zombie(ctx, 50)
	require.NoError(t, err)
	assert.False(t, z)

	_, err = fs.Zombie(ctx, 404)
	assert.Error(t, err)
}

func TestPsTableZombie(t *testing.T) {
	table := NewPsTable(time.Second)
	table.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		require.Equal(t, []string{"-o", "state=", "-p", "88"}, args)
		return []byte("Z+\n"), nil
	}
	z, err := table.Zombie(context.Background(), 88)
	require.NoError(t, err)
	assert.True(t, z)
}
