package server

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// knownCommands bounds the command label; everything else is "unknown"
var knownCommands = map[string]struct{}{
	"PING": {}, "ECHO": {}, "SET": {}, "GET": {}, "INFO": {},
	"REPLCONF": {}, "PSYNC": {}, "EVAL": {}, "EVALSHA": {}, "SCRIPT": {},
	"QUIT": {}, "COMMAND": {},
}

// serverMetrics holds the counters exported by one server
type serverMetrics struct {
	set              *metrics.Set
	connectionsTotal *metrics.Counter
	commandErrors    *metrics.Counter
	commandDuration  *metrics.Histogram
}

func newServerMetrics(set *metrics.Set, connectedClients func() float64) *serverMetrics {
	if set == nil {
		set = metrics.NewSet()
	}
	set.GetOrCreateGauge("redis_connected_clients", connectedClients)

	return &serverMetrics{
		set:              set,
		connectionsTotal: set.GetOrCreateCounter("redis_connections_total"),
		commandErrors:    set.GetOrCreateCounter("redis_command_errors_total"),
		commandDuration:  set.GetOrCreateHistogram("redis_command_duration_seconds"),
	}
}

// observeCommand records one executed command
func (m *serverMetrics) observeCommand(name string, start time.Time) {
	if _, ok := knownCommands[name]; !ok {
		name = "unknown"
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`redis_commands_total{command=%q}`, name)).Inc()
	m.commandDuration.UpdateDuration(start)
}

// WritePrometheus writes the server metrics in Prometheus text format
func (s *Server) WritePrometheus(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}

// Metrics returns the metrics set the server reports into
func (s *Server) Metrics() *metrics.Set {
	return s.metrics.set
}
