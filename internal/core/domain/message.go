package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageKind identifies the type of a protocol message.
type MessageKind string

const (
	KindInputsForDepositTxRequest  MessageKind = "InputsForDepositTxRequest"
	KindInputsForDepositTxResponse MessageKind = "InputsForDepositTxResponse"
	KindDepositTx                  MessageKind = "DepositTxMessage"
	KindDepositTxPublished         MessageKind = "DepositTxPublishedMessage"
	KindPaymentSent                MessageKind = "PaymentSentMessage"
	KindPayoutTxPublished          MessageKind = "PayoutTxPublishedMessage"
	KindBsqSwapRequest             MessageKind = "BsqSwapRequest"
	KindBsqSwapTxProposal          MessageKind = "BsqSwapTxProposal"
	KindBsqSwapFinalizedTx         MessageKind = "BsqSwapFinalizedTx"
	KindAck                        MessageKind = "AckMessage"
)

// Message is implemented by every protocol message payload.
type Message interface {
	Kind() MessageKind
}

// Envelope wraps a protocol message with the routing data shared by all
// messages. The uid is unique per message and is reused on re-sends so that
// the receiver can detect duplicates.
type Envelope struct {
	Uid           string
	Kind          MessageKind
	TradeId       string
	SenderAddress string
	Payload       []byte
	CreatedAt     int64
}

// NewEnvelope serializes the given message into a new envelope with a fresh
// uid.
func NewEnvelope(tradeId, senderAddress string, msg Message) (Envelope, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to serialize %s: %w", msg.Kind(), err)
	}
	return Envelope{
		Uid:           uuid.New().String(),
		Kind:          msg.Kind(),
		TradeId:       tradeId,
		SenderAddress: senderAddress,
		Payload:       payload,
		CreatedAt:     time.Now().Unix(),
	}, nil
}

// Decode deserializes the payload of the envelope according to its kind.
func (e Envelope) Decode() (Message, error) {
	var msg Message
	switch e.Kind {
	case KindInputsForDepositTxRequest:
		msg = &InputsForDepositTxRequest{}
	case KindInputsForDepositTxResponse:
		msg = &InputsForDepositTxResponse{}
	case KindDepositTx:
		msg = &DepositTxMessage{}
	case KindDepositTxPublished:
		msg = &DepositTxPublishedMessage{}
	case KindPaymentSent:
		msg = &PaymentSentMessage{}
	case KindPayoutTxPublished:
		msg = &PayoutTxPublishedMessage{}
	case KindBsqSwapRequest:
		msg = &BsqSwapRequest{}
	case KindBsqSwapTxProposal:
		msg = &BsqSwapTxProposal{}
	case KindBsqSwapFinalizedTx:
		msg = &BsqSwapFinalizedTx{}
	case KindAck:
		msg = &AckMessage{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageKind, e.Kind)
	}

	if err := json.Unmarshal(e.Payload, msg); err != nil {
		return nil, fmt.Errorf("failed to deserialize %s: %w", e.Kind, err)
	}
	return msg, nil
}

// InputsForDepositTxRequest is sent by the taker to the maker to take an
// escrow offer.
type InputsForDepositTxRequest struct {
	OfferId                   string
	TradeAmount               uint64
	TradePrice                string
	AccountId                 string
	PubKeyRing                []byte
	PaymentAccountPayloadHash []byte
	MultisigPubKey            []byte
	PayoutAddress             string
	RawInputs                 []RawTransactionInput
	ChangeAddress             string
	ChangeValue               uint64
}

func (*InputsForDepositTxRequest) Kind() MessageKind { return KindInputsForDepositTxRequest }

// InputsForDepositTxResponse carries the maker's contribution and its
// signature over the contract.
type InputsForDepositTxResponse struct {
	AccountId                 string
	PaymentAccountPayloadHash []byte
	MultisigPubKey            []byte
	PayoutAddress             string
	RawInputs                 []RawTransactionInput
	ChangeAddress             string
	ChangeValue               uint64
	ContractJson              []byte
	ContractSignature         []byte
}

func (*InputsForDepositTxResponse) Kind() MessageKind { return KindInputsForDepositTxResponse }

// DepositTxMessage carries the deposit tx signed by the taker over its own
// inputs only, together with the taker's contract signature.
type DepositTxMessage struct {
	ContractSignature []byte
	DepositTx         []byte
}

func (*DepositTxMessage) Kind() MessageKind { return KindDepositTx }

// DepositTxPublishedMessage notifies the taker about the broadcast deposit tx.
type DepositTxPublishedMessage struct {
	DepositTxId string
	DepositTx   []byte
}

func (*DepositTxPublishedMessage) Kind() MessageKind { return KindDepositTxPublished }

// PaymentSentMessage is sent by the buyer once the counter currency payment
// has been started. It carries the buyer's signature of the payout tx.
type PaymentSentMessage struct {
	PayoutTx        []byte
	PayoutSignature []byte
}

func (*PaymentSentMessage) Kind() MessageKind { return KindPaymentSent }

// PayoutTxPublishedMessage is sent by the seller after broadcasting the
// payout tx.
type PayoutTxPublishedMessage struct {
	PayoutTxId string
	PayoutTx   []byte
}

func (*PayoutTxPublishedMessage) Kind() MessageKind { return KindPayoutTxPublished }

// BsqSwapRequest is sent by the taker of a BSQ swap offer. It includes the
// taker's inputs so that the maker can build the whole transaction.
type BsqSwapRequest struct {
	OfferId                   string
	TradeAmount               uint64
	TradeDate                 int64
	TxFeePerVbyte             uint64
	MakerFee                  uint64
	TakerFee                  uint64
	AccountId                 string
	PubKeyRing                []byte
	PaymentAccountPayloadHash []byte
	RawInputs                 []RawTransactionInput
	ChangeAddress             string
	ChangeValue               uint64
	PayoutAddress             string
}

func (*BsqSwapRequest) Kind() MessageKind { return KindBsqSwapRequest }

// BsqSwapTxProposal carries the swap tx built by the maker, with the maker's
// inputs already signed.
type BsqSwapTxProposal struct {
	AccountId     string
	RawInputs     []RawTransactionInput
	ChangeAddress string
	ChangeValue   uint64
	PayoutAddress string
	Tx            []byte
}

func (*BsqSwapTxProposal) Kind() MessageKind { return KindBsqSwapTxProposal }

// BsqSwapFinalizedTx carries the fully signed and broadcast swap tx.
type BsqSwapFinalizedTx struct {
	TxId string
	Tx   []byte
}

func (*BsqSwapFinalizedTx) Kind() MessageKind { return KindBsqSwapFinalizedTx }

// AckMessage acknowledges the processing of a message identified by its uid.
type AckMessage struct {
	SourceUid    string
	SourceKind   MessageKind
	Success      bool
	ErrorMessage string
}

func (*AckMessage) Kind() MessageKind { return KindAck }
