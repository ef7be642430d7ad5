// Package decoder turns raw WRLD token logs into typed transfer events.
package decoder

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/vitwit/wrldpay/clients"
	"github.com/vitwit/wrldpay/types"
	"github.com/vitwit/wrldpay/utils"
)

var (
	// ErrUnknownTopic is returned for logs whose first topic is neither signature.
	ErrUnknownTopic = errors.New("decoder: unknown event topic")
	// ErrMalformedLog is returned when topics or data do not match the event schema.
	ErrMalformedLog = errors.New("decoder: malformed log")
)

var (
	TransferTopic    = clients.TokenABI().Events[clients.EventTransfer].ID
	TransferRefTopic = clients.TokenABI().Events[clients.EventTransferRef].ID
)

// Topics returns the signatures a subscription must be filtered to.
func Topics() []common.Hash {
	return []common.Hash{TransferRefTopic, TransferTopic}
}

// Decoder decodes logs emitted by one network's token contract.
type Decoder struct {
	network     types.Network
	transfer    abi.Event
	transferRef abi.Event
}

func New(network types.Network) *Decoder {
	parsed := clients.TokenABI()
	return &Decoder{
		network:     network,
		transfer:    parsed.Events[clients.EventTransfer],
		transferRef: parsed.Events[clients.EventTransferRef],
	}
}

// Decode selects the event variant by the first topic, reads from/to from the
// indexed topics and amount (and reference) from the data segment.
func (d *Decoder) Decode(log gethtypes.Log) (types.TransferEvent, error) {
	if len(log.Topics) == 0 {
		return types.TransferEvent{}, d.fail(log, ErrMalformedLog)
	}

	switch log.Topics[0] {
	case d.transferRef.ID:
		return d.decodeTransferRef(log)
	case d.transfer.ID:
		return d.decodeTransfer(log)
	default:
		return types.TransferEvent{}, d.fail(log, fmt.Errorf("%w: %s", ErrUnknownTopic, log.Topics[0].Hex()))
	}
}

func (d *Decoder) decodeTransferRef(log gethtypes.Log) (types.TransferEvent, error) {
	ev, values, err := d.decodeCommon(log, d.transferRef, 2)
	if err != nil {
		return types.TransferEvent{}, err
	}

	ref, ok := values[1].(*big.Int)
	if !ok {
		return types.TransferEvent{}, d.fail(log, fmt.Errorf("%w: reference is %T", ErrMalformedLog, values[1]))
	}
	r, overflow := uint256.FromBig(ref)
	if overflow {
		return types.TransferEvent{}, d.fail(log, fmt.Errorf("%w: reference overflows uint256", ErrMalformedLog))
	}

	ev.Kind = types.EventReferenced
	ev.Reference = *r
	return ev, nil
}

func (d *Decoder) decodeTransfer(log gethtypes.Log) (types.TransferEvent, error) {
	ev, _, err := d.decodeCommon(log, d.transfer, 1)
	if err != nil {
		return types.TransferEvent{}, err
	}
	ev.Kind = types.EventPlain
	return ev, nil
}

func (d *Decoder) decodeCommon(log gethtypes.Log, event abi.Event, fields int) (types.TransferEvent, []interface{}, error) {
	if len(log.Topics) != 3 {
		return types.TransferEvent{}, nil, d.fail(log, fmt.Errorf("%w: %s expects 3 topics, got %d", ErrMalformedLog, event.Name, len(log.Topics)))
	}

	values, err := event.Inputs.Unpack(log.Data)
	if err != nil {
		return types.TransferEvent{}, nil, d.fail(log, fmt.Errorf("%w: %v", ErrMalformedLog, err))
	}
	if len(values) != fields {
		return types.TransferEvent{}, nil, d.fail(log, fmt.Errorf("%w: %s expects %d data fields, got %d", ErrMalformedLog, event.Name, fields, len(values)))
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return types.TransferEvent{}, nil, d.fail(log, fmt.Errorf("%w: amount is %T", ErrMalformedLog, values[0]))
	}

	return types.TransferEvent{
		Network:     d.network,
		From:        common.BytesToAddress(log.Topics[1].Bytes()),
		To:          common.BytesToAddress(log.Topics[2].Bytes()),
		Amount:      utils.FromWei(amount),
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, values, nil
}

func (d *Decoder) fail(log gethtypes.Log, err error) error {
	return &types.WrldError{
		Code:    types.ErrDecode,
		Message: fmt.Sprintf("decode %s log %s#%d", d.network, log.TxHash.Hex(), log.Index),
		Err:     err,
	}
}
