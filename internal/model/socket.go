package model

import (
	"fmt"
	"strings"
)

// Protocol is the transport a socket belongs to.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// ParseProtocol accepts "tcp" or "udp" in any case.
func ParseProtocol(raw string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "tcp":
		return ProtocolTCP, nil
	case "udp":
		return ProtocolUDP, nil
	default:
		return "", fmt.Errorf("unknown protocol %q (want tcp or udp)", raw)
	}
}

// SocketState is the coarse connection state exposed to callers.
type SocketState string

const (
	StateListening   SocketState = "listening"
	StateEstablished SocketState = "established"
	StateOther       SocketState = "other"
)

// SocketRecord is one row of the socket table joined with its owner.
// It is a comparable value so live views can diff snapshots with it as a map key.
type SocketRecord struct {
	Port          uint16      `json:"port"`
	Protocol      Protocol    `json:"protocol"`
	PID           uint32      `json:"pid,omitempty"` // 0 when the owner could not be attributed
	ProcessName   string      `json:"process_name"`
	LocalAddress  string      `json:"address"`
	RemoteAddress string      `json:"remote_address,omitempty"`
	State         SocketState `json:"state"`
	Inode         uint64      `json:"-"`
}

// Attributed reports whether an owning process was found.
func (r SocketRecord) Attributed() bool {
	return r.PID != 0
}

// SocketFilter narrows what a socket reader returns.
type SocketFilter struct {
	// Protocols limits the transports; empty means both.
	Protocols []Protocol
	// Connections selects established sockets instead of listeners.
	Connections bool
	// All returns every state and overrides Connections.
	All bool
}

// WantsProtocol reports whether p passes the protocol part of the filter.
func (f SocketFilter) WantsProtocol(p Protocol) bool {
	if len(f.Protocols) == 0 {
		return true
	}
	for _, want := range f.Protocols {
		if want == p {
			return true
		}
	}
	return false
}

// WantsState reports whether s passes the state part of the filter.
func (f SocketFilter) WantsState(s SocketState) bool {
	switch {
	case f.All:
		return true
	case f.Connections:
		return s == StateEstablished
	default:
		return s == StateListening
	}
}

// Match applies the whole filter to a record.
func (f SocketFilter) Match(r SocketRecord) bool {
	return f.WantsProtocol(r.Protocol) && f.WantsState(r.State)
}

// ProcessEntry is one row of a process table.
type ProcessEntry struct {
	PID  uint32
	PPID uint32
	Name string
}

var wellKnownPorts = map[uint16]string{
	21:    "ftp",
	22:    "ssh",
	25:    "smtp",
	53:    "dns",
	80:    "http",
	110:   "pop3",
	143:   "imap",
	443:   "https",
	465:   "smtps",
	587:   "submission",
	993:   "imaps",
	995:   "pop3s",
	1433:  "mssql",
	3306:  "mysql",
	3389:  "rdp",
	5432:  "postgres",
	5672:  "amqp",
	6379:  "redis",
	8080:  "http-alt",
	8443:  "https-alt",
	9200:  "elasticsearch",
	27017: "mongodb",
}

// ServiceName returns the conventional service for a port, or "".
func ServiceName(port uint16) string {
	return wellKnownPorts[port]
}
