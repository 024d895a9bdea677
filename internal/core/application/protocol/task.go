package protocol

import (
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

// ResultKind tells how a task terminated.
type ResultKind int

const (
	// ResultContinue means the task is done and the next one can run.
	ResultContinue ResultKind = iota
	// ResultSuspend means the task is waiting for the delivery callback of a
	// message it sent. The pipeline resumes once the callback fires.
	ResultSuspend
	// ResultFailed means the task failed. No later task of the sequence runs.
	ResultFailed
)

func (k ResultKind) String() string {
	switch k {
	case ResultContinue:
		return "CONTINUE"
	case ResultSuspend:
		return "SUSPEND"
	default:
		return "FAILED"
	}
}

// Result is the outcome of a task.
type Result struct {
	Kind ResultKind
	Err  error
}

func Continue() Result {
	return Result{Kind: ResultContinue}
}

func Suspend() Result {
	return Result{Kind: ResultSuspend}
}

func Failed(err error) Result {
	return Result{Kind: ResultFailed, Err: err}
}

// ValidationFailure fails the task with an error that leaves the trade alive.
func ValidationFailure(err error) Result {
	return Failed(domain.NewValidationError(err))
}

// ConsistencyFailure fails the task and the trade.
func ConsistencyFailure(err error) Result {
	return Failed(domain.NewConsistencyError(err))
}

// PostBroadcastFailure fails the task after funds have been committed, which
// brings the trade to dispute.
func PostBroadcastFailure(err error) Result {
	return Failed(domain.NewPostBroadcastError(err))
}

// Task is a single step of a protocol sequence. A task reads and writes the
// process model and the trade of its context, and either completes, fails or
// suspends waiting for the delivery of a message it sent.
type Task struct {
	Name string
	Run  func(tc *TaskContext) Result
}

// Sequence is a named and ordered list of tasks.
type Sequence struct {
	Name  string
	Tasks []Task
}

// Trigger is what starts a sequence: either a local action or the kind of an
// inbound message.
type Trigger string

const (
	TriggerTakeOffer       Trigger = "take_offer"
	TriggerPaymentStarted  Trigger = "payment_started"
	TriggerPaymentReceived Trigger = "payment_received"
)

// MessageTrigger returns the trigger for an inbound message of the given kind.
func MessageTrigger(kind domain.MessageKind) Trigger {
	return Trigger(kind)
}

// Party selects the side of a trade a sequence is meant for.
type Party int

const (
	PartyMaker Party = iota
	PartyTaker
	PartyBuyer
	PartySeller
)

func (p Party) String() string {
	switch p {
	case PartyMaker:
		return "MAKER"
	case PartyTaker:
		return "TAKER"
	case PartyBuyer:
		return "BUYER"
	default:
		return "SELLER"
	}
}

// matches returns whether the party applies to the given role.
func (p Party) matches(role domain.Role) bool {
	switch p {
	case PartyMaker:
		return role.IsMaker()
	case PartyTaker:
		return !role.IsMaker()
	case PartyBuyer:
		return role.IsBuyer()
	default:
		return !role.IsBuyer()
	}
}

// SequenceEntry is a row of the lookup table used to select the sequence to
// run for a trade.
type SequenceEntry struct {
	Protocol domain.ProtocolKind
	Party    Party
	Trigger  Trigger
	Sequence Sequence
}

type sequenceKey struct {
	protocol domain.ProtocolKind
	party    Party
	trigger  Trigger
}

type lookupTable map[sequenceKey]Sequence

func newLookupTable(entries ...[]SequenceEntry) lookupTable {
	table := make(lookupTable)
	for _, list := range entries {
		for _, e := range list {
			table[sequenceKey{e.Protocol, e.Party, e.Trigger}] = e.Sequence
		}
	}
	return table
}

func (t lookupTable) find(
	protocol domain.ProtocolKind, role domain.Role, trigger Trigger,
) (Sequence, bool) {
	for _, party := range []Party{PartyMaker, PartyTaker, PartyBuyer, PartySeller} {
		if !party.matches(role) {
			continue
		}
		if seq, ok := t[sequenceKey{protocol, party, trigger}]; ok {
			return seq, true
		}
	}
	return Sequence{}, false
}

func (t lookupTable) byName(name string) (Sequence, bool) {
	for _, seq := range t {
		if seq.Name == name {
			return seq, true
		}
	}
	return Sequence{}, false
}
