// Package metrics exposes the counters of the protocol service as prometheus
// collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

const namespace = "tradeprotocol"

type prometheusMetrics struct {
	tasksCompleted *prometheus.CounterVec
	tasksFailed    *prometheus.CounterVec
	messagesSent   *prometheus.CounterVec
	messagesResent *prometheus.CounterVec
	messagesFailed *prometheus.CounterVec
	tradeStates    *prometheus.CounterVec
}

// NewPrometheusMetrics registers the collectors to the given registerer and
// returns them as protocol.Metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) (protocol.Metrics, error) {
	m := &prometheusMetrics{
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Count of protocol tasks completed by sequence and task.",
		}, []string{"sequence", "task"}),
		tasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_failed_total",
			Help:      "Count of protocol tasks failed by sequence, task and error kind.",
		}, []string{"sequence", "task", "kind"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Count of protocol messages sent by kind.",
		}, []string{"kind"}),
		messagesResent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_resent_total",
			Help:      "Count of protocol messages resent by kind.",
		}, []string{"kind"}),
		messagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_failed_total",
			Help:      "Count of protocol messages that failed delivery or were rejected.",
		}, []string{"kind"}),
		tradeStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_state_transitions_total",
			Help:      "Count of trade state transitions by protocol and reached state.",
		}, []string{"protocol", "state"}),
	}

	for _, c := range []prometheus.Collector{
		m.tasksCompleted, m.tasksFailed, m.messagesSent,
		m.messagesResent, m.messagesFailed, m.tradeStates,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *prometheusMetrics) TaskCompleted(sequence, task string) {
	m.tasksCompleted.WithLabelValues(sequence, task).Inc()
}

func (m *prometheusMetrics) TaskFailed(sequence, task string, kind domain.ErrorKind) {
	m.tasksFailed.WithLabelValues(sequence, task, kind.String()).Inc()
}

func (m *prometheusMetrics) MessageSent(kind domain.MessageKind) {
	m.messagesSent.WithLabelValues(string(kind)).Inc()
}

func (m *prometheusMetrics) MessageResent(kind domain.MessageKind) {
	m.messagesResent.WithLabelValues(string(kind)).Inc()
}

func (m *prometheusMetrics) MessageFailed(kind domain.MessageKind) {
	m.messagesFailed.WithLabelValues(string(kind)).Inc()
}

func (m *prometheusMetrics) TradeStateChanged(
	protocol domain.ProtocolKind, state domain.TradeState,
) {
	m.tradeStates.WithLabelValues(protocol.String(), state.String()).Inc()
}
