package protocol

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

// SendPolicy tells what a fault of an outbound message means for the task
// that sent it.
type SendPolicy int

const (
	// FailOnFault fails the task if the message can't be delivered.
	FailOnFault SendPolicy = iota
	// ResendOnFault records the fault and completes the task. The message is
	// left to the resender until it's acknowledged.
	ResendOnFault
)

// TaskContext is what a task works with: the live trade, its process model,
// the inbound message that triggered the sequence (if any) and the
// collaborators of the engine.
type TaskContext struct {
	Ctx      context.Context
	Trade    *domain.Trade
	Model    *domain.ProcessModel
	Trigger  *domain.Envelope
	Provider Provider
	Config   Config

	pipeline *Pipeline
	message  domain.Message
	notify   func(TradeEvent)
}

// Message returns the decoded payload of the triggering message.
func (tc *TaskContext) Message() (domain.Message, error) {
	if tc.message != nil {
		return tc.message, nil
	}
	if tc.Trigger == nil {
		return nil, fmt.Errorf("sequence was not triggered by a message")
	}
	msg, err := tc.Trigger.Decode()
	if err != nil {
		return nil, err
	}
	tc.message = msg
	return msg, nil
}

// Logger returns a logger bound to the trade and the running task.
func (tc *TaskContext) Logger() *log.Entry {
	entry := log.WithField("trade", tc.Trade.Id)
	if tc.pipeline != nil {
		entry = entry.WithField("task", tc.pipeline.currentTask())
	}
	return entry
}

// SequenceName returns the name of the running sequence, if any.
func (tc *TaskContext) SequenceName() string {
	if tc.pipeline == nil {
		return ""
	}
	return tc.pipeline.seq.Name
}

// IsBuyer returns whether the local party is the BTC buyer of the trade.
func (tc *TaskContext) IsBuyer() bool {
	return tc.Trade.IsBuyer()
}

// Send issues the given message to the trading peer and suspends the task
// until the network reports the outcome of the delivery. If a record for a
// not yet delivered message of the same kind exists, as it happens when an
// interrupted pipeline is resumed, its envelope is sent again with the same
// uid.
func (tc *TaskContext) Send(msg domain.Message, policy SendPolicy) Result {
	record := tc.Model.LatestMessageRecord(msg.Kind())
	if record == nil || record.State != domain.MessageStateUndefined {
		env, err := domain.NewEnvelope(
			tc.Trade.Id, tc.Provider.Network.NodeAddress(), msg,
		)
		if err != nil {
			return ConsistencyFailure(err)
		}
		record = &domain.MessageRecord{
			Uid:         env.Uid,
			Kind:        env.Kind,
			PeerAddress: tc.Model.Peer.NodeAddress,
			State:       domain.MessageStateUndefined,
			Resendable:  policy == ResendOnFault,
			Envelope:    env,
		}
		tc.Model.TrackMessage(record)
	}
	record.RecordAttempt()

	if tc.pipeline == nil {
		return ConsistencyFailure(fmt.Errorf("send outside of a pipeline"))
	}
	listener := tc.pipeline.newSendListener(record.Uid, policy)
	tc.pipeline.metrics.MessageSent(record.Kind)
	tc.Provider.Network.Send(
		tc.Ctx, tc.Model.Peer.NodeAddress, tc.Model.Peer.PubKeyRing,
		record.Envelope, listener,
	)
	return Suspend()
}
