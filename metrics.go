package corvus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the engine's Prometheus collectors. A nil *metrics is a
// valid no-op receiver, used when no registerer is configured.
type metrics struct {
	commands        *prometheus.CounterVec
	replies         *prometheus.CounterVec
	sessionFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corvus_smtp_commands_total",
			Help: "Operations dispatched by the engine, by kind.",
		}, []string{"kind"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corvus_smtp_replies_total",
			Help: "Server reply groups processed, by code class.",
		}, []string{"class"}),
		sessionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corvus_smtp_session_failures_total",
			Help: "Sessions that ended in failure.",
		}),
	}
	reg.MustRegister(m.commands, m.replies, m.sessionFailures)
	return m
}

func (m *metrics) command(kind opKind) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind.String()).Inc()
}

func (m *metrics) reply(code int) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(fmt.Sprintf("%dxx", code/100)).Inc()
}

func (m *metrics) sessionFailure() {
	if m == nil {
		return
	}
	m.sessionFailures.Inc()
}
