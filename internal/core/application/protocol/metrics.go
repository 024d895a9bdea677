package protocol

import "github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"

// Metrics collects counters about pipelines and messages.
type Metrics interface {
	TaskCompleted(sequence, task string)
	TaskFailed(sequence, task string, kind domain.ErrorKind)
	MessageSent(kind domain.MessageKind)
	MessageResent(kind domain.MessageKind)
	MessageFailed(kind domain.MessageKind)
	TradeStateChanged(protocol domain.ProtocolKind, state domain.TradeState)
}

type noopMetrics struct{}

func (noopMetrics) TaskCompleted(string, string) {}
func (noopMetrics) TaskFailed(string, string, domain.ErrorKind) {}
func (noopMetrics) MessageSent(domain.MessageKind) {}
func (noopMetrics) MessageResent(domain.MessageKind) {}
func (noopMetrics) MessageFailed(domain.MessageKind) {}
func (noopMetrics) TradeStateChanged(domain.ProtocolKind, domain.TradeState) {}
