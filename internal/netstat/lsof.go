package netstat

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"ports/internal/model"
	"ports/internal/sysexec"
)

// Lsof reads sockets from `lsof -F` field output. lsof already knows the
// owner, so records come back attributed.
type Lsof struct {
	Run sysexec.Runner
}

// NewLsof returns a reader that shells out to the real lsof.
func NewLsof() *Lsof {
	return &Lsof{Run: sysexec.Exec}
}

func (l *Lsof) ReadSockets(ctx context.Context, filter model.SocketFilter) ([]model.SocketRecord, error) {
	args := []string{"-nP", "-w"}
	switch {
	case filter.WantsProtocol(model.ProtocolTCP) && filter.WantsProtocol(model.ProtocolUDP):
		args = append(args, "-iTCP", "-iUDP")
	case filter.WantsProtocol(model.ProtocolTCP):
		args = append(args, "-iTCP")
	default:
		args = append(args, "-iUDP")
	}
	args = append(args, "-FpcPnT")

	out, err := l.Run(ctx, "lsof", args...)
	var runErr error
	if err != nil {
		if len(out) == 0 {
			// lsof exits 1 when nothing matched, which is not a failure.
			if isExitOne(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("list sockets: %w", err)
		}
		runErr = fmt.Errorf("list sockets: output may be incomplete: %w", err)
	}

	records, parseErr := ParseLsof(out)
	kept := records[:0]
	for _, rec := range records {
		if filter.Match(rec) {
			kept = append(kept, rec)
		}
	}
	return kept, errors.Join(runErr, parseErr)
}

func isExitOne(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == 1
}

type lsofFile struct {
	protocol string
	name     string
	tcpState string
	seen     bool
}

// ParseLsof converts `lsof -F pcPnT` output into socket records.
// Entries it cannot interpret are skipped and reported as *RowError values.
func ParseLsof(out []byte) ([]model.SocketRecord, error) {
	var (
		records []model.SocketRecord
		errs    []error
		pid     uint32
		command string
		file    lsofFile
		line    int
	)

	flush := func() {
		if !file.seen {
			return
		}
		rec, err := lsofRecord(pid, command, file)
		file = lsofFile{}
		if err != nil {
			errs = append(errs, &RowError{Table: "lsof", Line: line, Err: err})
			return
		}
		records = append(records, rec)
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		tag, value := text[0], text[1:]
		switch tag {
		case 'p':
			flush()
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				errs = append(errs, &RowError{Table: "lsof", Line: line, Err: fmt.Errorf("pid %q: %w", value, err)})
				pid = 0
				continue
			}
			pid = uint32(n)
			command = ""
		case 'c':
			command = strings.ReplaceAll(value, `\x20`, " ")
		case 'f':
			flush()
			file.seen = true
		case 'P':
			file.protocol = value
		case 'n':
			file.name = value
		case 'T':
			if state, ok := strings.CutPrefix(value, "ST="); ok {
				file.tcpState = state
			}
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		errs = append(errs, err)
	}
	return records, errors.Join(errs...)
}

func lsofRecord(pid uint32, command string, f lsofFile) (model.SocketRecord, error) {
	proto, err := model.ParseProtocol(f.protocol)
	if err != nil {
		return model.SocketRecord{}, err
	}
	local, remote, _ := strings.Cut(f.name, "->")
	host, port, err := splitHostPort(local)
	if err != nil {
		return model.SocketRecord{}, err
	}

	rec := model.SocketRecord{
		Port:         port,
		Protocol:     proto,
		PID:          pid,
		ProcessName:  command,
		LocalAddress: joinHostPort(host, port),
	}
	switch {
	case proto == model.ProtocolTCP && f.tcpState == "LISTEN":
		rec.State = model.StateListening
	case proto == model.ProtocolTCP && f.tcpState == "ESTABLISHED":
		rec.State = model.StateEstablished
	case proto == model.ProtocolUDP && remote == "":
		rec.State = model.StateListening
	case proto == model.ProtocolUDP:
		rec.State = model.StateEstablished
	default:
		rec.State = model.StateOther
	}
	if rec.State == model.StateEstablished && remote != "" {
		rhost, rport, err := splitHostPort(remote)
		if err != nil {
			return model.SocketRecord{}, err
		}
		rec.RemoteAddress = joinHostPort(rhost, rport)
	}
	return rec, nil
}
