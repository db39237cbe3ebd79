package netstat

import (
	"context"
	"fmt"
	"syscall"

	gnet "github.com/shirou/gopsutil/v3/net"

	"ports/internal/model"
)

// Psutil reads sockets through gopsutil on platforms with neither procfs
// nor lsof. Owners come attributed by pid but without a name.
type Psutil struct {
	connections func(ctx context.Context, kind string) ([]gnet.ConnectionStat, error)
}

func NewPsutil() *Psutil {
	return &Psutil{connections: gnet.ConnectionsWithContext}
}

func (p *Psutil) ReadSockets(ctx context.Context, filter model.SocketFilter) ([]model.SocketRecord, error) {
	conns, err := p.connections(ctx, "inet")
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	records := make([]model.SocketRecord, 0, len(conns))
	for _, c := range conns {
		rec, ok := psutilRecord(c)
		if !ok || !filter.Match(rec) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func psutilRecord(c gnet.ConnectionStat) (model.SocketRecord, bool) {
	var rec model.SocketRecord
	switch c.Type {
	case uint32(syscall.SOCK_STREAM):
		rec.Protocol = model.ProtocolTCP
	case uint32(syscall.SOCK_DGRAM):
		rec.Protocol = model.ProtocolUDP
	default:
		return rec, false
	}
	if c.Pid > 0 {
		rec.PID = uint32(c.Pid)
	}
	rec.Port = uint16(c.Laddr.Port)
	rec.LocalAddress = joinHostPort(c.Laddr.IP, rec.Port)

	switch {
	case rec.Protocol == model.ProtocolTCP && c.Status == "LISTEN":
		rec.State = model.StateListening
	case rec.Protocol == model.ProtocolTCP && c.Status == "ESTABLISHED":
		rec.State = model.StateEstablished
	case rec.Protocol == model.ProtocolUDP && c.Raddr.IP == "":
		rec.State = model.StateListening
	case rec.Protocol == model.ProtocolUDP:
		rec.State = model.StateEstablished
	default:
		rec.State = model.StateOther
	}
	if rec.State == model.StateEstablished {
		rec.RemoteAddress = joinHostPort(c.Raddr.IP, uint16(c.Raddr.Port))
	}
	return rec, true
}
