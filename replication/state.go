package replication

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

// Role is the replication role of this process
type Role int

const (
	RoleMaster Role = iota
	RoleSlave
)

// String returns the role as rendered by INFO
func (r Role) String() string {
	if r == RoleSlave {
		return "slave"
	}
	return "master"
}

// ReplIDLength is the length of a replication id
const ReplIDLength = 40

const replIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Backlog values reported by INFO. No backlog is kept.
const (
	replBacklogSize = 1048576
)

// ErrNotMaster is returned when a slave is asked to register a replica
var ErrNotMaster = errors.New("replication: not a master")

// MasterAddr identifies the master a slave replicates from
type MasterAddr struct {
	Host string
	Port int
}

// String returns host:port
func (a MasterAddr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ParseMasterAddr parses the "<host> <port>" form used by --replicaof
func ParseMasterAddr(s string) (*MasterAddr, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil, fmt.Errorf("invalid master address %q: want \"<host> <port>\"", s)
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid master port %q", fields[1])
	}
	return &MasterAddr{Host: fields[0], Port: port}, nil
}

// Config configures the replication state
type Config struct {
	// ReplicaOf makes this process a slave of the given master when set
	ReplicaOf *MasterAddr
}

// Info is a snapshot of the replication state
type Info struct {
	Role            Role
	ReplID          string
	ReplOffset      int64
	MasterHost      string
	MasterPort      int
	ConnectedSlaves int
}

// Slave describes a replica registered with this master
type Slave struct {
	ListeningPort uint16
	Capabilities  []string
}

// State is the replication state of one process. It is safe for
// concurrent use.
type State struct {
	mu         sync.RWMutex
	role       Role
	replID     string
	replOffset int64
	master     *MasterAddr
	slaves     []Slave
}

// NewState creates the state with a freshly generated replication id
func NewState(cfg Config) *State {
	s := &State{
		role:   RoleMaster,
		replID: NewReplID(),
	}
	if cfg.ReplicaOf != nil {
		master := *cfg.ReplicaOf
		s.role = RoleSlave
		s.master = &master
	}
	return s
}

// NewReplID returns a random replication id of ReplIDLength characters
// drawn uniformly from [0-9a-z]
func NewReplID() string {
	var b strings.Builder
	b.Grow(ReplIDLength)
	for i := 0; i < ReplIDLength; i++ {
		b.WriteByte(replIDAlphabet[rand.IntN(len(replIDAlphabet))])
	}
	return b.String()
}

// Info returns a consistent snapshot
func (s *State) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		Role:            s.role,
		ReplID:          s.replID,
		ReplOffset:      s.replOffset,
		ConnectedSlaves: len(s.slaves),
	}
	if s.master != nil {
		info.MasterHost = s.master.Host
		info.MasterPort = s.master.Port
	}
	return info
}

// Role returns the configured role
func (s *State) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// Master returns the master address, or nil on a master
func (s *State) Master() *MasterAddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.master == nil {
		return nil
	}
	m := *s.master
	return &m
}

// CompleteFullResync records the id and offset announced by the master
func (s *State) CompleteFullResync(replID string, offset int64) {
	s.mu.Lock()
	s.replID = replID
	s.replOffset = offset
	s.mu.Unlock()
}

// AddSlave registers a replica
func (s *State) AddSlave(slave Slave) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleMaster {
		return ErrNotMaster
	}
	slave.Capabilities = append([]string(nil), slave.Capabilities...)
	s.slaves = append(s.slaves, slave)
	return nil
}

// Slaves returns a copy of the registry
func (s *State) Slaves() []Slave {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Slave, len(s.slaves))
	for i, slave := range s.slaves {
		out[i] = Slave{
			ListeningPort: slave.ListeningPort,
			Capabilities:  append([]string(nil), slave.Capabilities...),
		}
	}
	return out
}

// FullResyncReply answers a PSYNC request. Only a full resync request
// ("? -1") is supported; the reply always announces offset 0.
func (s *State) FullResyncReply(replID string, offset int64) (protocol.Value, error) {
	s.mu.RLock()
	role, id := s.role, s.replID
	s.mu.RUnlock()

	if role != RoleMaster {
		return protocol.Value{}, ErrNotMaster
	}
	if replID != "?" || offset != -1 {
		return protocol.Value{}, fmt.Errorf("partial resynchronization is not supported")
	}
	return protocol.SimpleString("FULLRESYNC " + id + " 0"), nil
}

// Section renders the INFO replication section, lines separated by \n
func (s *State) Section() string {
	info := s.Info()

	var b strings.Builder
	b.WriteString("# Replication\n")
	fmt.Fprintf(&b, "role:%s\n", info.Role)
	fmt.Fprintf(&b, "connected_slaves:%d\n", info.ConnectedSlaves)
	fmt.Fprintf(&b, "master_replid:%s\n", info.ReplID)
	fmt.Fprintf(&b, "master_repl_offset:%d\n", info.ReplOffset)
	b.WriteString("second_repl_offset:-1\n")
	b.WriteString("repl_backlog_active:0\n")
	fmt.Fprintf(&b, "repl_backlog_size:%d\n", replBacklogSize)
	b.WriteString("repl_backlog_first_byte_offset:0\n")
	b.WriteString("repl_backlog_histlen:0\n")
	if info.Role == RoleSlave {
		fmt.Fprintf(&b, "master_host:%s\n", info.MasterHost)
		fmt.Fprintf(&b, "master_port:%d\n", info.MasterPort)
	}
	return b.String()
}
