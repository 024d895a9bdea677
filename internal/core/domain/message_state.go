package domain

import "time"

// MessageState is the delivery state of an outbound protocol message.
type MessageState int

const (
	MessageStateUndefined MessageState = iota
	MessageStateArrived
	MessageStateStoredInMailbox
	MessageStateAcknowledged
	MessageStateFailed
)

func (s MessageState) String() string {
	switch s {
	case MessageStateUndefined:
		return "UNDEFINED"
	case MessageStateArrived:
		return "ARRIVED"
	case MessageStateStoredInMailbox:
		return "STORED_IN_MAILBOX"
	case MessageStateAcknowledged:
		return "ACKNOWLEDGED"
	case MessageStateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// CanTransitionTo returns whether moving from s to next respects the
// UNDEFINED -> {ARRIVED|STORED_IN_MAILBOX} -> {ACKNOWLEDGED|FAILED} ordering.
// Intermediate steps may be skipped, but a state never regresses.
func (s MessageState) CanTransitionTo(next MessageState) bool {
	return next.rank() > s.rank()
}

// IsFinal returns whether the state can't change anymore.
func (s MessageState) IsFinal() bool {
	return s == MessageStateAcknowledged || s == MessageStateFailed
}

func (s MessageState) rank() int {
	switch s {
	case MessageStateUndefined:
		return 0
	case MessageStateArrived, MessageStateStoredInMailbox:
		return 1
	default:
		return 2
	}
}

// MessageRecord tracks the delivery of a single outbound message. The
// envelope is kept so that a restarted process can re-send the very same
// message, identified by the same uid.
type MessageRecord struct {
	Uid         string
	Kind        MessageKind
	PeerAddress string
	State       MessageState
	Resendable  bool
	Attempts    int
	LastAttempt int64
	LastError   string
	Envelope    Envelope
}

// Transition moves the record to the given state if allowed.
func (r *MessageRecord) Transition(next MessageState) bool {
	if !r.State.CanTransitionTo(next) {
		return false
	}
	r.State = next
	return true
}

// RecordAttempt bumps the attempt counter.
func (r *MessageRecord) RecordAttempt() {
	r.Attempts++
	r.LastAttempt = time.Now().Unix()
}

// NeedsResend returns whether the message is still waiting to be
// acknowledged and can be sent again.
func (r *MessageRecord) NeedsResend() bool {
	return r.Resendable && !r.State.IsFinal()
}
