package replication

import (
	"errors"
	"strings"
	"testing"
)

func TestNewReplID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewReplID()
		if len(id) != ReplIDLength {
			t.Fatalf("len(%q) = %d, want %d", id, len(id), ReplIDLength)
		}
		for _, ch := range id {
			if !(ch >= '0' && ch <= '9') && !(ch >= 'a' && ch <= 'z') {
				t.Fatalf("replid %q contains %q", id, ch)
			}
		}
		if seen[id] {
			t.Fatalf("duplicate replid %q", id)
		}
		seen[id] = true
	}
}

func TestParseMasterAddr(t *testing.T) {
	tests := []struct {
		input   string
		want    MasterAddr
		wantErr bool
	}{
		{"localhost 6379", MasterAddr{Host: "localhost", Port: 6379}, false},
		{"  10.0.0.1   7000 ", MasterAddr{Host: "10.0.0.1", Port: 7000}, false},
		{"localhost", MasterAddr{}, true},
		{"localhost abc", MasterAddr{}, true},
		{"localhost 0", MasterAddr{}, true},
		{"localhost 70000", MasterAddr{}, true},
		{"a b c", MasterAddr{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMasterAddr(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMasterAddr() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && *got != tt.want {
				t.Errorf("ParseMasterAddr() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestStateRoles(t *testing.T) {
	master := NewState(Config{})
	if master.Role() != RoleMaster {
		t.Errorf("Role() = %v, want master", master.Role())
	}
	if master.Master() != nil {
		t.Error("master should have no master address")
	}

	slave := NewState(Config{ReplicaOf: &MasterAddr{Host: "localhost", Port: 6379}})
	info := slave.Info()
	if info.Role != RoleSlave {
		t.Errorf("Role = %v, want slave", info.Role)
	}
	if info.MasterHost != "localhost" || info.MasterPort != 6379 {
		t.Errorf("master = %s:%d, want localhost:6379", info.MasterHost, info.MasterPort)
	}
	if info.ReplOffset != 0 {
		t.Errorf("ReplOffset = %d, want 0", info.ReplOffset)
	}

	if err := slave.AddSlave(Slave{ListeningPort: 1}); !errors.Is(err, ErrNotMaster) {
		t.Errorf("AddSlave() on slave error = %v, want ErrNotMaster", err)
	}
}

func TestCompleteFullResync(t *testing.T) {
	s := NewState(Config{ReplicaOf: &MasterAddr{Host: "localhost", Port: 6379}})
	id := strings.Repeat("a", ReplIDLength)

	s.CompleteFullResync(id, 42)

	info := s.Info()
	if info.ReplID != id || info.ReplOffset != 42 {
		t.Errorf("Info() = %s/%d, want %s/42", info.ReplID, info.ReplOffset, id)
	}
}

func TestFullResyncReply(t *testing.T) {
	s := NewState(Config{})

	reply, err := s.FullResyncReply("?", -1)
	if err != nil {
		t.Fatalf("FullResyncReply() error = %v", err)
	}
	want := "FULLRESYNC " + s.Info().ReplID + " 0"
	if !reply.IsSimpleString(want) {
		t.Errorf("reply = %q, want %q", reply.String(), want)
	}

	if _, err := s.FullResyncReply(s.Info().ReplID, 100); err == nil {
		t.Error("expected partial resync to be rejected")
	}

	slave := NewState(Config{ReplicaOf: &MasterAddr{Host: "h", Port: 1}})
	if _, err := slave.FullResyncReply("?", -1); !errors.Is(err, ErrNotMaster) {
		t.Errorf("slave FullResyncReply() error = %v, want ErrNotMaster", err)
	}
}

func TestSection(t *testing.T) {
	master := NewState(Config{})
	section := master.Section()

	for _, want := range []string{
		"# Replication\n",
		"role:master\n",
		"connected_slaves:0\n",
		"master_replid:" + master.Info().ReplID + "\n",
		"master_repl_offset:0\n",
		"second_repl_offset:-1\n",
		"repl_backlog_size:1048576\n",
	} {
		if !strings.Contains(section, want) {
			t.Errorf("master section missing %q:\n%s", want, section)
		}
	}
	if strings.Contains(section, "master_host") {
		t.Error("master section must not contain master_host")
	}

	slave := NewState(Config{ReplicaOf: &MasterAddr{Host: "example", Port: 7000}})
	section = slave.Section()
	for _, want := range []string{"role:slave\n", "master_host:example\n", "master_port:7000\n"} {
		if !strings.Contains(section, want) {
			t.Errorf("slave section missing %q:\n%s", want, section)
		}
	}
}

func TestSlavesReturnsCopy(t *testing.T) {
	s := NewState(Config{})
	if err := s.AddSlave(Slave{ListeningPort: 6380, Capabilities: []string{"psync2"}}); err != nil {
		t.Fatalf("AddSlave() error = %v", err)
	}

	slaves := s.Slaves()
	slaves[0].Capabilities[0] = "changed"
	slaves[0].ListeningPort = 1

	again := s.Slaves()
	if again[0].ListeningPort != 6380 || again[0].Capabilities[0] != "psync2" {
		t.Errorf("registry mutated through copy: %+v", again[0])
	}
	if s.Info().ConnectedSlaves != 1 {
		t.Errorf("ConnectedSlaves = %d, want 1", s.Info().ConnectedSlaves)
	}
}
