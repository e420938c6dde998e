package redisserver_test

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/redis/go-redis/v9"

	redisserver "github.com/raniellyferreira/redis-inmemory-server"
	"github.com/raniellyferreira/redis-inmemory-server/replication"
)

func startNode(t *testing.T, opts ...redisserver.Option) *redisserver.Node {
	t.Helper()

	opts = append([]redisserver.Option{
		redisserver.WithBindAddr("127.0.0.1"),
		redisserver.WithPort(0),
		redisserver.WithLogger(&testLogger{}),
	}, opts...)

	node, err := redisserver.New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := node.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { node.Close() })
	return node
}

// replicaOf returns the WithReplicaOf argument pointing at node
func replicaOf(t *testing.T, node *redisserver.Node) string {
	t.Helper()
	host, port, err := net.SplitHostPort(node.Addr())
	if err != nil {
		t.Fatal(err)
	}
	return host + " " + port
}

func TestNew(t *testing.T) {
	node, err := redisserver.New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer node.Close()

	if node.Storage() == nil {
		t.Fatal("Expected storage to be non-nil")
	}
	if got := node.Replication().Role(); got != replication.RoleMaster {
		t.Errorf("Role() = %s, want master", got)
	}
	if got := node.Addr(); got != "0.0.0.0:6379" {
		t.Errorf("Addr() before Start = %s, want 0.0.0.0:6379", got)
	}
}

func TestNewWithInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  redisserver.Option
	}{
		{"negative port", redisserver.WithPort(-1)},
		{"port too large", redisserver.WithPort(70000)},
		{"empty bind address", redisserver.WithBindAddr("")},
		{"replicaof without port", redisserver.WithReplicaOf("localhost")},
		{"replicaof bad port", redisserver.WithReplicaOf("localhost abc")},
		{"nil logger", redisserver.WithLogger(nil)},
		{"negative idle timeout", redisserver.WithIdleTimeout(-time.Second)},
		{"zero connect timeout", redisserver.WithConnectTimeout(0)},
		{"zero read timeout", redisserver.WithReadTimeout(0)},
		{"zero write timeout", redisserver.WithWriteTimeout(0)},
		{"zero shards", redisserver.WithShardCount(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := redisserver.New(tt.opt)
			if !errors.Is(err, redisserver.ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNodeSlaveRole(t *testing.T) {
	node, err := redisserver.New(redisserver.WithReplicaOf("redis.example.com 6380"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer node.Close()

	info := node.Replication().Info()
	if info.Role != replication.RoleSlave {
		t.Errorf("Role = %s, want slave", info.Role)
	}
	if info.MasterHost != "redis.example.com" || info.MasterPort != 6380 {
		t.Errorf("master = %s:%d", info.MasterHost, info.MasterPort)
	}
}

func TestNodeServesClients(t *testing.T) {
	node := startNode(t)

	rdb := redis.NewClient(&redis.Options{
		Addr:            node.Addr(),
		Protocol:        2,
		DisableIdentity: true,
	})
	defer rdb.Close()
	ctx := context.Background()

	if err := rdb.Set(ctx, "greeting", "hello", 0).Err(); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, ok := node.Storage().Get("greeting")
	if !ok || string(value) != "hello" {
		t.Errorf("Storage().Get() = %q, %v", value, ok)
	}

	info, err := rdb.Info(ctx).Result()
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if !strings.Contains(info, "role:master") {
		t.Errorf("Info() = %s", info)
	}
}

func TestNodeStartTwice(t *testing.T) {
	node := startNode(t)

	if err := node.Start(context.Background()); !errors.Is(err, redisserver.ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestNodeStartAfterClose(t *testing.T) {
	node, err := redisserver.New(redisserver.WithBindAddr("127.0.0.1"), redisserver.WithPort(0))
	if err != nil {
		t.Fatal(err)
	}

	if err := node.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := node.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := node.Start(context.Background()); !errors.Is(err, redisserver.ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}

func TestNodeReplicationHandshake(t *testing.T) {
	master := startNode(t)
	slave := startNode(t, redisserver.WithReplicaOf(replicaOf(t, master)))

	masterInfo := master.Replication().Info()
	slaveInfo := slave.Replication().Info()

	if slaveInfo.ReplID != masterInfo.ReplID {
		t.Errorf("slave replid = %s, want master replid %s", slaveInfo.ReplID, masterInfo.ReplID)
	}
	if slaveInfo.ReplOffset != 0 {
		t.Errorf("slave offset = %d, want 0", slaveInfo.ReplOffset)
	}

	slaves := master.Replication().Slaves()
	if len(slaves) != 1 {
		t.Fatalf("master has %d slaves, want 1", len(slaves))
	}
	if got, want := int(slaves[0].ListeningPort), slave.Server().Port(); got != want {
		t.Errorf("registered port = %d, want %d", got, want)
	}
	if len(slaves[0].Capabilities) != 1 || slaves[0].Capabilities[0] != "psync2" {
		t.Errorf("capabilities = %v, want [psync2]", slaves[0].Capabilities)
	}

	stats := slave.ReplicationStats()
	if !stats.Connected || stats.MasterReplID != masterInfo.ReplID {
		t.Errorf("ReplicationStats() = %+v", stats)
	}
	if stats.HandshakeAttempts != 1 {
		t.Errorf("HandshakeAttempts = %d, want 1", stats.HandshakeAttempts)
	}

	// Slave INFO reports the master it follows
	rdb := redis.NewClient(&redis.Options{
		Addr:            slave.Addr(),
		Protocol:        2,
		DisableIdentity: true,
	})
	defer rdb.Close()

	info, err := rdb.Info(context.Background(), "replication").Result()
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	_, masterPort, _ := net.SplitHostPort(master.Addr())
	for _, want := range []string{
		"role:slave",
		"master_replid:" + masterInfo.ReplID,
		"master_host:127.0.0.1",
		"master_port:" + masterPort,
	} {
		if !strings.Contains(info, want) {
			t.Errorf("slave INFO missing %q:\n%s", want, info)
		}
	}
}

func TestNodeReplicationMasterUnreachable(t *testing.T) {
	// Reserve a port and release it so nothing listens there
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	node, err := redisserver.New(
		redisserver.WithBindAddr("127.0.0.1"),
		redisserver.WithPort(0),
		redisserver.WithLogger(&testLogger{}),
		redisserver.WithReplicaOf("127.0.0.1 "+strconv.Itoa(port)),
		redisserver.WithConnectTimeout(time.Second),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer node.Close()

	err = node.Start(context.Background())
	if err == nil {
		t.Fatal("Start() succeeded without a master")
	}

	var connErr *redisserver.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Start() error = %T, want *ConnectionError", err)
	}
	var hsErr *replication.HandshakeError
	if !errors.As(err, &hsErr) || hsErr.Step != replication.StepPing {
		t.Errorf("Start() error = %v, want handshake error at ping", err)
	}

	// The listener is released on failure
	if _, err := net.DialTimeout("tcp", node.Addr(), 200*time.Millisecond); err == nil {
		t.Error("node still accepts connections after failed handshake")
	}
}

func TestNodeMetricsSet(t *testing.T) {
	set := metrics.NewSet()
	node := startNode(t, redisserver.WithMetricsSet(set))

	rdb := redis.NewClient(&redis.Options{
		Addr:            node.Addr(),
		Protocol:        2,
		DisableIdentity: true,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	var b strings.Builder
	set.WritePrometheus(&b)
	if !strings.Contains(b.String(), `redis_commands_total{command="PING"} 1`) {
		t.Errorf("metrics missing PING counter:\n%s", b.String())
	}
}

// Test helper types
type testLogger struct{}

func (l *testLogger) Debug(msg string, fields ...redisserver.Field) {}
func (l *testLogger) Info(msg string, fields ...redisserver.Field)  {}
func (l *testLogger) Error(msg string, fields ...redisserver.Field) {}
