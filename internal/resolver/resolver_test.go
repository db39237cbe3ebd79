package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ports/internal/logging"
	"ports/internal/model"
	"ports/internal/netstat"
	"ports/internal/platform"
)

type stubSockets struct {
	records []model.SocketRecord
	err     error
}

func (s stubSockets) ReadSockets(context.Context, model.SocketFilter) ([]model.SocketRecord, error) {
	out := make([]model.SocketRecord, len(s.records))
	copy(out, s.records)
	return out, s.err
}

type stubProcs struct {
	names   map[uint32]string
	owners  map[uint64]uint32
	lookups map[uint32]int
}

func (s *stubProcs) Lookup(_ context.Context, pid uint32) (model.ProcessEntry, error) {
	if s.lookups == nil {
		s.lookups = make(map[uint32]int)
	}
	s.lookups[pid]++
	name, ok := s.names[pid]
	if !ok {
		return model.ProcessEntry{}, errors.New("gone")
	}
	return model.ProcessEntry{PID: pid, PPID: 1, Name: name}, nil
}

func (s *stubProcs) SocketOwners(context.Context) (map[uint64]uint32, error) {
	return s.owners, nil
}

func newTestResolver(sockets platform.SocketReader, procs platform.ProcessReader) *Resolver {
	return New(platform.Platform{Name: "test", Sockets: sockets, Processes: procs},
		WithLogger(logging.Discard()))
}

func TestSocketsAttributesOwners(t *testing.T) {
	procs := &stubProcs{
		names:  map[uint32]string{100: "node", 200: "postgres"},
		owners: map[uint64]uint32{11: 100, 12: 100, 13: 200},
	}
	sockets := stubSockets{records: []model.SocketRecord{
		{Port: 3000, Protocol: model.ProtocolTCP, Inode: 11},
		{Port: 3001, Protocol: model.ProtocolTCP, Inode: 12},
		{Port: 5432, Protocol: model.ProtocolTCP, Inode: 13},
		{Port: 53, Protocol: model.ProtocolUDP, Inode: 99},
	}}

	recs, err := newTestResolver(sockets, procs).Sockets(context.Background(), model.SocketFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, uint32(100), recs[0].PID)
	assert.Equal(t, "node", recs[0].ProcessName)
	assert.Equal(t, "node", recs[1].ProcessName)
	assert.Equal(t, "postgres", recs[2].ProcessName)
	assert.False(t, recs[3].Attributed())
	assert.Equal(t, 1, procs.lookups[100], "names are memoized per pid")
}

func TestSocketsKeepsReaderAttribution(t *testing.T) {
	procs := &stubProcs{names: map[uint32]string{7: "ignored"}}
	sockets := stubSockets{records: []model.SocketRecord{
		{Port: 80, PID: 7, ProcessName: "nginx"},
	}}
	recs, err := newTestResolver(sockets, procs).Sockets(context.Background(), model.SocketFilter{})
	require.NoError(t, err)
	assert.Equal(t, "nginx", recs[0].ProcessName)
	assert.Empty(t, procs.lookups)
}

func TestSocketsVanishedOwnerKeepsPID(t *testing.T) {
	procs := &stubProcs{owners: map[uint64]uint32{5: 42}}
	sockets := stubSockets{records: []model.SocketRecord{{Port: 8080, Inode: 5}}}
	recs, err := newTestResolver(sockets, procs).Sockets(context.Background(), model.SocketFilter{})
	require.NoError(t, err)
	assert.Equal(t, uint32(42), recs[0].PID)
	assert.Empty(t, recs[0].ProcessName)
}

func TestSocketsReturnsRowDiagnostics(t *testing.T) {
	rowErr := &netstat.RowError{Table: "tcp", Line: 3, Err: errors.New("bad")}
	sockets := stubSockets{
		records: []model.SocketRecord{{Port: 22, PID: 1, ProcessName: "sshd"}},
		err:     errors.Join(rowErr),
	}
	recs, err := newTestResolver(sockets, &stubProcs{}).Sockets(context.Background(), model.SocketFilter{})
	require.Len(t, recs, 1)
	require.Error(t, err)
	assert.Len(t, netstat.RowErrors(err), 1)
}

func TestSocketsUnavailablePlatform(t *testing.T) {
	r := New(platform.Unavailable(), WithLogger(logging.Discard()))
	recs, err := r.Sockets(context.Background(), model.SocketFilter{})
	assert.Empty(t, recs)
	assert.ErrorIs(t, err, platform.ErrUnavailable)
}

var table = []model.SocketRecord{
	{Port: 3000, PID: 4242, ProcessName: "node"},
	{Port: 4242, PID: 900, ProcessName: "Python3"},
	{Port: 5432, PID: 3000, ProcessName: "postgres"},
	{Port: 8080, PID: 4242, ProcessName: "node"},
}

func TestFilterPortFirst(t *testing.T) {
	m, err := Filter(table, Query{Target: "4242"})
	require.NoError(t, err)
	assert.Equal(t, MatchPort, m.Kind)
	assert.True(t, m.Ambiguous)
	require.Len(t, m.Records, 1)
	assert.Equal(t, "Python3", m.Records[0].ProcessName)
}

func TestFilterPreferPID(t *testing.T) {
	m, err := Filter(table, Query{Target: "4242", PreferPID: true})
	require.NoError(t, err)
	assert.Equal(t, MatchPID, m.Kind)
	assert.True(t, m.Ambiguous)
	assert.Len(t, m.Records, 2)
}

func TestFilterPIDFallback(t *testing.T) {
	m, err := Filter(table, Query{Target: "900"})
	require.NoError(t, err)
	assert.Equal(t, MatchPID, m.Kind)
	assert.False(t, m.Ambiguous)
	assert.Equal(t, uint16(4242), m.Records[0].Port)
}

func TestFilterPIDAbovePortRange(t *testing.T) {
	big := []model.SocketRecord{{Port: 80, PID: 70000, ProcessName: "x"}}
	m, err := Filter(big, Query{Target: "70000"})
	require.NoError(t, err)
	assert.Equal(t, MatchPID, m.Kind)
}

func TestFilterName(t *testing.T) {
	m, err := Filter(table, Query{Target: " PYTH "})
	require.NoError(t, err)
	assert.Equal(t, MatchName, m.Kind)
	assert.Len(t, m.Records, 1)
}

func TestFilterRegex(t *testing.T) {
	m, err := Filter(table, Query{Target: "^(node|postgres)$", Regex: true})
	require.NoError(t, err)
	assert.Len(t, m.Records, 3)

	_, err = Filter(table, Query{Target: "(", Regex: true})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMatch)
}

func TestFilterNoMatch(t *testing.T) {
	_, err := Filter(table, Query{Target: "redis"})
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = Filter(table, Query{Target: "1"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestFilterEmptyTargetKeepsAll(t *testing.T) {
	m, err := Filter(table, Query{})
	require.NoError(t, err)
	assert.Equal(t, MatchAll, m.Kind)
	assert.Len(t, m.Records, len(table))
}

func TestFilterRejectsControlCharacters(t *testing.T) {
	_, err := Filter(table, Query{Target: "no\x1bde"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMatch)
}

func TestSortAndOwners(t *testing.T) {
	recs := append([]model.SocketRecord(nil), table...)
	Sort(recs, SortPID)
	assert.Equal(t, uint32(900), recs[0].PID)

	Sort(recs, SortName)
	assert.Equal(t, "Python3", recs[0].ProcessName)

	owners := Owners(table)
	require.Len(t, owners, 3)
	assert.Equal(t, uint32(4242), owners[0].PID)

	_, err := ParseSortField("size")
	assert.Error(t, err)
	f, err := ParseSortField("PORT")
	require.NoError(t, err)
	assert.Equal(t, SortPort, f)
}

func TestParsePID(t *testing.T) {
	pid, ok := ParsePID(" 123 ")
	assert.True(t, ok)
	assert.Equal(t, uint32(123), pid)

	_, ok = ParsePID("0")
	assert.False(t, ok)
	_, ok = ParsePID("node")
	assert.False(t, ok)
}
