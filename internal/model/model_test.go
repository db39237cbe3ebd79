package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAncestry() ProcessAncestry {
	return ProcessAncestry{
		Chain: []Ancestor{
			{PID: 200, Name: "nginx", PPID: 50},
			{PID: 50, Name: "systemd", PPID: 1},
			{PID: 1, Name: "init", PPID: 0},
		},
		Source:         SourceSystemd,
		Warnings:       []HealthWarning{WarningDeletedBinary},
		Repo:           &RepoContext{Root: "/srv/app", Branch: "main"},
		SupervisorUnit: "nginx.service",
	}
}

func TestChainStringRootFirst(t *testing.T) {
	a := sampleAncestry()
	assert.Equal(t, "init(1) → systemd(50) → nginx(200)", a.ChainString())

	target, ok := a.Target()
	require.True(t, ok)
	assert.Equal(t, uint32(200), target.PID)
}

func TestCloneIsDeep(t *testing.T) {
	a := sampleAncestry()
	c := a.Clone()

	c.Chain[0].Name = "changed"
	c.Warnings[0] = WarningZombie
	c.Repo.Branch = "dev"

	assert.Equal(t, "nginx", a.Chain[0].Name)
	assert.Equal(t, WarningDeletedBinary, a.Warnings[0])
	assert.Equal(t, "main", a.Repo.Branch)
}

func TestAncestryJSONShape(t *testing.T) {
	data, err := json.Marshal(sampleAncestry())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"chain": [{"pid":200,"name":"nginx"},{"pid":50,"name":"systemd"},{"pid":1,"name":"init"}],
		"source": "systemd",
		"warnings": ["deleted-binary"],
		"git": {"repo_root":"/srv/app","branch":"main"},
		"supervisor_unit": "nginx.service"
	}`, string(data))

	data, err = json.Marshal(ProcessAncestry{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"chain":[],"source":"unknown","warnings":[]}`, string(data))
}

func TestSourceCategoryText(t *testing.T) {
	for i := range sourceNames {
		s := SourceCategory(i)
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back SourceCategory
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	var s SourceCategory
	assert.Error(t, s.UnmarshalText([]byte("upstart")))
	assert.True(t, SourceLaunchd.IsInitSystem())
	assert.False(t, SourceShell.IsInitSystem())
}

func TestSocketRecordJSON(t *testing.T) {
	rec := SocketRecord{
		Port:         8080,
		Protocol:     ProtocolTCP,
		PID:          4242,
		ProcessName:  "node",
		LocalAddress: "127.0.0.1:8080",
		State:        StateListening,
		Inode:        99,
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"port":8080,"protocol":"tcp","pid":4242,"process_name":"node","address":"127.0.0.1:8080","state":"listening"}`, string(data))
}

func TestSocketFilter(t *testing.T) {
	listen := SocketRecord{Protocol: ProtocolUDP, State: StateListening}
	conn := SocketRecord{Protocol: ProtocolTCP, State: StateEstablished}

	assert.True(t, SocketFilter{}.Match(listen))
	assert.False(t, SocketFilter{}.Match(conn))
	assert.True(t, SocketFilter{Connections: true}.Match(conn))
	assert.False(t, SocketFilter{Protocols: []Protocol{ProtocolTCP}}.Match(listen))
	assert.True(t, SocketFilter{All: true}.Match(conn))
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "postgres", ServiceName(5432))
	assert.Empty(t, ServiceName(5433))
}

func TestSameProcessName(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"node", "node", true},
		{"node", "bash", false},
		{"node", "nodemon", false},
		{"com.apple", "com.apple.WebKit", true},
		{"postgres", "postgres_exporter", false},
		{"", "node", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SameProcessName(tc.a, tc.b), "%q vs %q", tc.a, tc.b)
		assert.Equal(t, tc.want, SameProcessName(tc.b, tc.a), "%q vs %q", tc.b, tc.a)
	}
}
