package netstat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ports/internal/model"
	"ports/internal/sysexec"
)

const tcpHeader = "  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode\n"

const procNetTCP = tcpHeader +
	"   0: 0100007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 12345 1 0000000000000000 100 0 0 10 0\n" +
	"   1: 00000000:0016 00000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 11111 1 0000000000000000 100 0 0 10 0\n" +
	"   2: 0100007F:1F90 0100007F:C350 01 00000000:00000000 00:00000000 00000000  1000        0 23456 1 0000000000000000 20 4 30 10 -1\n" +
	"   3: ZZZZZZZZ:0050 00000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 777 1 0000000000000000 100 0 0 10 0\n" +
	"   4: garbage\n"

const procNetTCP6 = tcpHeader +
	"   0: 00000000000000000000000000000000:1F90 00000000000000000000000000000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 34567 1 0000000000000000 100 0 0 10 0\n" +
	"   1: 00000000000000000000000001000000:0CEA 00000000000000000000000000000000:0000 0A 00000000:00000000 00:00000000 00000000   106        0 45678 1 0000000000000000 100 0 0 10 0\n"

const procNetUDP = "  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode ref pointer drops\n" +
	"  10: 00000000:14E9 00000000:0000 07 00000000:00000000 00:00000000 00000000   100        0 56789 2 0000000000000000 0\n"

func writeProcNet(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "net")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tcp"), []byte(procNetTCP), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tcp6"), []byte(procNetTCP6), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "udp"), []byte(procNetUDP), 0o644))
	// udp6 intentionally absent
	return root
}

func TestProcNetListening(t *testing.T) {
	reader := NewProcNet(writeProcNet(t))
	recs, err := reader.ReadSockets(context.Background(), model.SocketFilter{})

	rows := RowErrors(err)
	require.Len(t, rows, 2)
	assert.Equal(t, "tcp", rows[0].Table)
	assert.Equal(t, 5, rows[0].Line)
	assert.Equal(t, 6, rows[1].Line)
	assert.ErrorIs(t, rows[1], errTooFewFields)

	want := []model.SocketRecord{
		{Port: 8080, Protocol: model.ProtocolTCP, LocalAddress: "127.0.0.1:8080", State: model.StateListening, Inode: 12345},
		{Port: 22, Protocol: model.ProtocolTCP, LocalAddress: "0.0.0.0:22", State: model.StateListening, Inode: 11111},
		{Port: 8080, Protocol: model.ProtocolTCP, LocalAddress: "[::]:8080", State: model.StateListening, Inode: 34567},
		{Port: 3306, Protocol: model.ProtocolTCP, LocalAddress: "[::1]:3306", State: model.StateListening, Inode: 45678},
		{Port: 5353, Protocol: model.ProtocolUDP, LocalAddress: "0.0.0.0:5353", State: model.StateListening, Inode: 56789},
	}
	assert.Equal(t, want, recs)
}

func TestProcNetConnections(t *testing.T) {
	reader := NewProcNet(writeProcNet(t))
	recs, _ := reader.ReadSockets(context.Background(), model.SocketFilter{Connections: true})
	require.Len(t, recs, 1)
	assert.Equal(t, "127.0.0.1:8080", recs[0].LocalAddress)
	assert.Equal(t, "127.0.0.1:50000", recs[0].RemoteAddress)
	assert.Equal(t, uint64(23456), recs[0].Inode)
}

func TestProcNetProtocolFilter(t *testing.T) {
	reader := NewProcNet(writeProcNet(t))
	recs, err := reader.ReadSockets(context.Background(), model.SocketFilter{Protocols: []model.Protocol{model.ProtocolUDP}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint16(5353), recs[0].Port)
}

func TestProcNetCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewProcNet(writeProcNet(t)).ReadSockets(ctx, model.SocketFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsPublicAddress(t *testing.T) {
	for _, addr := range []string{"0.0.0.0:80", ":::443", "[::]:8080", "*:5353"} {
		assert.True(t, IsPublicAddress(addr), addr)
	}
	for _, addr := range []string{"127.0.0.1:3000", "192.168.1.5:22", "[::1]:8080"} {
		assert.False(t, IsPublicAddress(addr), addr)
	}
}

func TestDecodeEndpoint(t *testing.T) {
	addr, port, err := decodeEndpoint("0100007F:1F90")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", addr.String())
	assert.Equal(t, uint16(8080), port)

	_, _, err = decodeEndpoint("0100007F")
	assert.Error(t, err)
	_, _, err = decodeEndpoint("01007F:0050")
	assert.Error(t, err)
}

const lsofOutput = `p312
cnginx
f6
PTCP
n*:80
TST=LISTEN
TQR=0
f7
PTCP
n[::]:80
TST=LISTEN
p4242
cnode
f21
PTCP
n127.0.0.1:3000
TST=LISTEN
f22
PTCP
n127.0.0.1:3000->127.0.0.1:51234
TST=ESTABLISHED
f30
PUDP
n*:5353
f31
PSCTP
n*:9999
`

func TestParseLsof(t *testing.T) {
	recs, err := ParseLsof([]byte(lsofOutput))
	rows := RowErrors(err)
	require.Len(t, rows, 1, "sctp row is reported")

	want := []model.SocketRecord{
		{Port: 80, Protocol: model.ProtocolTCP, PID: 312, ProcessName: "nginx", LocalAddress: "*:80", State: model.StateListening},
		{Port: 80, Protocol: model.ProtocolTCP, PID: 312, ProcessName: "nginx", LocalAddress: "[::]:80", State: model.StateListening},
		{Port: 3000, Protocol: model.ProtocolTCP, PID: 4242, ProcessName: "node", LocalAddress: "127.0.0.1:3000", State: model.StateListening},
		{Port: 3000, Protocol: model.ProtocolTCP, PID: 4242, ProcessName: "node", LocalAddress: "127.0.0.1:3000", RemoteAddress: "127.0.0.1:51234", State: model.StateEstablished},
		{Port: 5353, Protocol: model.ProtocolUDP, PID: 4242, ProcessName: "node", LocalAddress: "*:5353", State: model.StateListening},
	}
	assert.Equal(t, want, recs)
}

func TestLsofReader(t *testing.T) {
	var gotArgs []string
	reader := &Lsof{Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "lsof", name)
		gotArgs = args
		return []byte(lsofOutput), nil
	}}
	recs, _ := reader.ReadSockets(context.Background(), model.SocketFilter{Protocols: []model.Protocol{model.ProtocolTCP}})
	assert.Contains(t, gotArgs, "-iTCP")
	assert.NotContains(t, gotArgs, "-iUDP")
	assert.Len(t, recs, 3)
}

func TestLsofMissingUtility(t *testing.T) {
	reader := &Lsof{Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, sysexec.ErrUtilityUnavailable
	}}
	recs, err := reader.ReadSockets(context.Background(), model.SocketFilter{})
	assert.Empty(t, recs)
	assert.ErrorIs(t, err, sysexec.ErrUtilityUnavailable)
}

func TestPsutilReader(t *testing.T) {
	reader := &Psutil{connections: func(ctx context.Context, kind string) ([]gnet.ConnectionStat, error) {
		assert.Equal(t, "inet", kind)
		return []gnet.ConnectionStat{
			{Type: 1, Status: "LISTEN", Pid: 10, Laddr: gnet.Addr{IP: "0.0.0.0", Port: 80}},
			{Type: 1, Status: "ESTABLISHED", Pid: 11, Laddr: gnet.Addr{IP: "::1", Port: 5432}, Raddr: gnet.Addr{IP: "::1", Port: 40000}},
			{Type: 2, Status: "NONE", Laddr: gnet.Addr{IP: "*", Port: 68}},
		}, nil
	}}

	recs, err := reader.ReadSockets(context.Background(), model.SocketFilter{All: true})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "0.0.0.0:80", recs[0].LocalAddress)
	assert.Equal(t, uint32(10), recs[0].PID)
	assert.Equal(t, "[::1]:40000", recs[1].RemoteAddress)
	assert.Equal(t, model.StateListening, recs[2].State)
	assert.Equal(t, uint32(0), recs[2].PID)

	failing := &Psutil{connections: func(context.Context, string) ([]gnet.ConnectionStat, error) {
		return nil, errors.New("permission denied")
	}}
	_, err = failing.ReadSockets(context.Background(), model.SocketFilter{})
	assert.EqualError(t, err, "list connections: permission denied")
}

func TestLsofPartialOutputKeepsDiagnostic(t *testing.T) {
	failure := errors.New("exit status 2")
	reader := &Lsof{Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("p4242\ncnode\nf21\nPTCP\nn127.0.0.1:3000\nTST=LISTEN\n"), failure
	}}
	recs, err := reader.ReadSockets(context.Background(), model.SocketFilter{})
	require.Len(t, recs, 1)
	assert.Equal(t, uint16(3000), recs[0].Port)
	assert.ErrorIs(t, err, failure)
	assert.Empty(t, RowErrors(err))
}

func TestParseLsofUnescapesCommand(t *testing.T) {
	recs, err := ParseLsof([]byte("p77\ncGoogle\\x20Ch\nf40\nPTCP\nn127.0.0.1:9222\nTST=LISTEN\n"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Google Ch", recs[0].ProcessName)
}
