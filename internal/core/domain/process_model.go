package domain

import (
	"bytes"
	"fmt"
	"sort"
)

// PipelineCursor marks how far the current pipeline of a trade went. It is
// persisted at every task boundary so that a restarted process replays only
// the remaining tasks of the current sequence.
type PipelineCursor struct {
	Sequence string
	Next     int
	Trigger  *Envelope
}

// ProcessModel is the working state of the local party for one trade. It is
// owned exclusively by the pipeline running the trade's protocol.
type ProcessModel struct {
	TradeId                   string
	AccountId                 string
	NodeAddress               string
	PubKeyRing                []byte
	PaymentAccountPayloadHash []byte

	FeeTxId         string
	RawInputs       []RawTransactionInput
	ChangeAddress   string
	ChangeValue     uint64
	MultisigPubKey  []byte
	PayoutAddress   string
	ReservedAddress string

	ContractJson      []byte
	ContractHash      []byte
	ContractSignature []byte

	PreparedDepositTx []byte
	SignedDepositTx   []byte
	DepositTx         []byte

	PayoutTx        []byte
	PayoutSignature []byte
	FinalPayoutTx   []byte

	SwapTx      []byte
	FinalSwapTx []byte

	StatisticsPublished bool

	MessageStates     map[string]*MessageRecord
	ProcessedMessages map[string]bool
	Cursor            *PipelineCursor
	// PendingResend mirrors HasPendingResends as of the last save.
	PendingResend bool `badgerhold:"index"`

	Peer TradingPeer
}

// NewProcessModel returns an empty process model for the given trade.
func NewProcessModel(tradeId, accountId, nodeAddress string, pubKeyRing []byte) *ProcessModel {
	return &ProcessModel{
		TradeId:           tradeId,
		AccountId:         accountId,
		NodeAddress:       nodeAddress,
		PubKeyRing:        pubKeyRing,
		MessageStates:     make(map[string]*MessageRecord),
		ProcessedMessages: make(map[string]bool),
	}
}

// Validate makes sure that every group of persisted byte fields is either
// fully absent or fully populated and bound to the model's trade id.
func (m *ProcessModel) Validate() error {
	if len(m.TradeId) <= 0 {
		return ErrMissingTradeId
	}

	contractFields := [][]byte{m.ContractJson, m.ContractHash}
	if err := allOrNothing("contract", contractFields...); err != nil {
		return err
	}
	if len(m.ContractJson) > 0 {
		contract, err := DeserializeContract(m.ContractJson)
		if err != nil {
			return err
		}
		if contract.TradeId != m.TradeId {
			return ErrContractTradeIdMismatch
		}
		if !bytes.Equal(contract.Hash(), m.ContractHash) {
			return ErrContractHashMismatch
		}
	}
	if len(m.ContractSignature) > 0 && len(m.ContractJson) <= 0 {
		return fmt.Errorf("%w: contract signature without contract", ErrInconsistentModel)
	}

	if err := allOrNothing("payout", m.PayoutTx, m.PayoutSignature); err != nil {
		return err
	}
	if len(m.DepositTx) > 0 && len(m.SignedDepositTx) <= 0 && len(m.PreparedDepositTx) <= 0 {
		return fmt.Errorf("%w: deposit tx without prepared tx", ErrInconsistentModel)
	}
	return nil
}

// MessageRecord returns the tracked record for the given message uid.
func (m *ProcessModel) MessageRecord(uid string) (*MessageRecord, bool) {
	if m.MessageStates == nil {
		return nil, false
	}
	r, ok := m.MessageStates[uid]
	return r, ok
}

// TrackMessage adds a record for an outbound message.
func (m *ProcessModel) TrackMessage(record *MessageRecord) {
	if m.MessageStates == nil {
		m.MessageStates = make(map[string]*MessageRecord)
	}
	m.MessageStates[record.Uid] = record
}

// LatestMessageRecord returns the most recent record of the given kind.
func (m *ProcessModel) LatestMessageRecord(kind MessageKind) *MessageRecord {
	var latest *MessageRecord
	for _, r := range m.MessageStates {
		if r.Kind != kind {
			continue
		}
		if latest == nil || r.Envelope.CreatedAt > latest.Envelope.CreatedAt {
			latest = r
		}
	}
	return latest
}

// SortedMessageRecords returns the tracked records sorted by creation time.
func (m *ProcessModel) SortedMessageRecords() []MessageRecord {
	records := make([]MessageRecord, 0, len(m.MessageStates))
	for _, r := range m.MessageStates {
		records = append(records, *r)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Envelope.CreatedAt == records[j].Envelope.CreatedAt {
			return records[i].Uid < records[j].Uid
		}
		return records[i].Envelope.CreatedAt < records[j].Envelope.CreatedAt
	})
	return records
}

// HasPendingResends returns whether any tracked message still has to be
// sent again.
func (m *ProcessModel) HasPendingResends() bool {
	for _, r := range m.MessageStates {
		if r.NeedsResend() {
			return true
		}
	}
	return false
}

// IsProcessed returns whether an inbound message was already processed.
func (m *ProcessModel) IsProcessed(uid string) bool {
	return m.ProcessedMessages[uid]
}

// MarkProcessed records an inbound message as processed.
func (m *ProcessModel) MarkProcessed(uid string) {
	if m.ProcessedMessages == nil {
		m.ProcessedMessages = make(map[string]bool)
	}
	m.ProcessedMessages[uid] = true
}

func allOrNothing(group string, fields ...[]byte) error {
	populated := 0
	for _, f := range fields {
		if len(f) > 0 {
			populated++
		}
	}
	if populated != 0 && populated != len(fields) {
		return fmt.Errorf("%w: %s fields partially populated", ErrInconsistentModel, group)
	}
	return nil
}
