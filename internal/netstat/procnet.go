package netstat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ports/internal/model"
)

// Kernel socket states as printed in the "st" column.
const (
	tcpEstablished = 0x01
	tcpListen      = 0x0A
	udpClose       = 0x07 // unconnected but bound: a UDP "listener"
)

type procNetTable struct {
	name     string
	protocol model.Protocol
}

var procNetTables = []procNetTable{
	{name: "tcp", protocol: model.ProtocolTCP},
	{name: "tcp6", protocol: model.ProtocolTCP},
	{name: "udp", protocol: model.ProtocolUDP},
	{name: "udp6", protocol: model.ProtocolUDP},
}

// ProcNet reads the kernel socket tables under <Root>/net. Records carry
// inodes but no owner; the resolver joins them with the process table.
type ProcNet struct {
	Root string
}

// NewProcNet returns a reader for the procfs mounted at root ("/proc" when empty).
func NewProcNet(root string) *ProcNet {
	if root == "" {
		root = "/proc"
	}
	return &ProcNet{Root: root}
}

// ReadSockets parses every table. Unparsable rows are skipped and
// reported as *RowError values joined into the returned error.
func (p *ProcNet) ReadSockets(ctx context.Context, filter model.SocketFilter) ([]model.SocketRecord, error) {
	var (
		records []model.SocketRecord
		errs    []error
	)
	for _, table := range procNetTables {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		if !filter.WantsProtocol(table.protocol) {
			continue
		}
		path := filepath.Join(p.Root, "net", table.name)
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// IPv6 disabled, or a trimmed-down procfs.
				continue
			}
			errs = append(errs, fmt.Errorf("read %s: %w", path, err))
			continue
		}
		recs, rowErrs, err := parseProcNetTable(f, table, filter)
		f.Close()
		records = append(records, recs...)
		errs = append(errs, rowErrs...)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", path, err))
		}
	}
	return records, errors.Join(errs...)
}

func parseProcNetTable(r io.Reader, table procNetTable, filter model.SocketFilter) ([]model.SocketRecord, []error, error) {
	var (
		records []model.SocketRecord
		rowErrs []error
	)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		if line == 1 {
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		rec, err := parseProcNetRow(fields, table.protocol)
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Table: table.name, Line: line, Err: err})
			continue
		}
		if !filter.WantsState(rec.State) {
			continue
		}
		records = append(records, rec)
	}
	return records, rowErrs, sc.Err()
}

func parseProcNetRow(fields []string, proto model.Protocol) (model.SocketRecord, error) {
	if len(fields) < 10 {
		return model.SocketRecord{}, errTooFewFields
	}
	localIP, localPort, err := decodeEndpoint(fields[1])
	if err != nil {
		return model.SocketRecord{}, err
	}
	remoteIP, remotePort, err := decodeEndpoint(fields[2])
	if err != nil {
		return model.SocketRecord{}, err
	}
	st, err := strconv.ParseUint(fields[3], 16, 8)
	if err != nil {
		return model.SocketRecord{}, fmt.Errorf("state %q: %w", fields[3], err)
	}
	inode, err := strconv.ParseUint(fields[9], 10, 64)
	if err != nil {
		return model.SocketRecord{}, fmt.Errorf("inode %q: %w", fields[9], err)
	}

	rec := model.SocketRecord{
		Port:         localPort,
		Protocol:     proto,
		LocalAddress: formatEndpoint(localIP, localPort),
		State:        kernelState(proto, uint8(st)),
		Inode:        inode,
	}
	if rec.State == model.StateEstablished {
		rec.RemoteAddress = formatEndpoint(remoteIP, remotePort)
	}
	return rec, nil
}

func kernelState(proto model.Protocol, st uint8) model.SocketState {
	switch {
	case st == tcpEstablished:
		return model.StateEstablished
	case proto == model.ProtocolTCP && st == tcpListen:
		return model.StateListening
	case proto == model.ProtocolUDP && st == udpClose:
		return model.StateListening
	default:
		return model.StateOther
	}
}
