// Package types holds the domain model shared by the reconciliation engine:
// payment intents, wallets, decoded transfer events and error codes.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Identity is the opaque id of a player known to the host application.
type Identity = uuid.UUID

// IntentKey identifies an intent. Reference ids are only unique within a network.
type IntentKey struct {
	Reference uint256.Int
	Network   Network
}

// NewIntentKey builds a key from a reference and network.
func NewIntentKey(ref *uint256.Int, network Network) IntentKey {
	k := IntentKey{Network: network}
	if ref != nil {
		k.Reference.Set(ref)
	}
	return k
}

func (k IntentKey) String() string {
	return fmt.Sprintf("%s/%s", k.Network, k.Reference.Dec())
}

// ParseReference parses a decimal or 0x-prefixed hex reference id.
func ParseReference(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &WrldError{Code: ErrInvalidIntent, Message: "reference cannot be empty"}
	}
	var (
		ref *uint256.Int
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		ref, err = uint256.FromHex(s)
	} else {
		ref, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return nil, &WrldError{
			Code:    ErrInvalidIntent,
			Message: fmt.Sprintf("invalid reference %q", s),
			Err:     err,
		}
	}
	return ref, nil
}

// PaymentIntent is an outstanding payment owed to the application.
type PaymentIntent struct {
	Reference      uint256.Int
	Network        Network
	ExpectedAmount decimal.Decimal
	Identity       Identity
	Reason         string
	Payload        []byte

	// AllowDuplicateConsumption keeps the intent pending after a match, so the
	// same reference can be paid repeatedly (e.g. a standing donation reference).
	AllowDuplicateConsumption bool

	CreatedAt time.Time
}

func (p *PaymentIntent) Key() IntentKey {
	return NewIntentKey(&p.Reference, p.Network)
}

// Validate checks that the intent can be registered.
func (p *PaymentIntent) Validate() error {
	if !p.Network.IsValid() {
		return &WrldError{Code: ErrUnsupportedNetwork, Message: fmt.Sprintf("unsupported network: %q", p.Network)}
	}
	if !p.ExpectedAmount.IsPositive() {
		return &WrldError{Code: ErrInvalidIntent, Message: "expected amount must be greater than 0"}
	}
	if p.Identity == uuid.Nil {
		return &WrldError{Code: ErrInvalidIntent, Message: "associated identity is required"}
	}
	return nil
}

// PeerToPeerIntent is a tracked transfer between two players' wallets.
// ExpectedAmount is overwritten with the observed amount when they differ.
type PeerToPeerIntent struct {
	Reference      uint256.Int
	Network        Network
	ExpectedAmount decimal.Decimal
	From           Identity
	To             Identity
	Reason         string

	CreatedAt time.Time
}

func (p *PeerToPeerIntent) Key() IntentKey {
	return NewIntentKey(&p.Reference, p.Network)
}

func (p *PeerToPeerIntent) Validate() error {
	if !p.Network.IsValid() {
		return &WrldError{Code: ErrUnsupportedNetwork, Message: fmt.Sprintf("unsupported network: %q", p.Network)}
	}
	if !p.ExpectedAmount.IsPositive() {
		return &WrldError{Code: ErrInvalidIntent, Message: "expected amount must be greater than 0"}
	}
	if p.From == uuid.Nil || p.To == uuid.Nil {
		return &WrldError{Code: ErrInvalidIntent, Message: "both sender and receiver identities are required"}
	}
	return nil
}

// Wallet is a linked player wallet with best-effort cached WRLD balances.
// The on-chain contract state is always authoritative.
type Wallet struct {
	Address         common.Address
	Owner           Identity
	PolygonBalance  decimal.Decimal
	EthereumBalance decimal.Decimal
}

// Balance returns the cached balance on the given chain.
func (w *Wallet) Balance(n Network) decimal.Decimal {
	switch n {
	case NetworkEthereum:
		return w.EthereumBalance
	case NetworkPolygon:
		return w.PolygonBalance
	default:
		return decimal.Zero
	}
}

// SetBalance overwrites the cached balance on the given chain.
func (w *Wallet) SetBalance(n Network, v decimal.Decimal) {
	switch n {
	case NetworkEthereum:
		w.EthereumBalance = v
	case NetworkPolygon:
		w.PolygonBalance = v
	}
}

// EventKind discriminates decoded transfer logs.
type EventKind int

const (
	// EventPlain is the standard ERC-20 Transfer(address,address,uint256).
	EventPlain EventKind = iota + 1
	// EventReferenced is TransferRef(address,address,uint256,uint256).
	EventReferenced
)

func (k EventKind) String() string {
	switch k {
	case EventPlain:
		return "transfer"
	case EventReferenced:
		return "transfer_ref"
	default:
		return "unknown"
	}
}

// TransferEvent is a decoded WRLD transfer log. Reference is only meaningful
// when Kind is EventReferenced.
type TransferEvent struct {
	Kind      EventKind
	Network   Network
	From      common.Address
	To        common.Address
	Amount    decimal.Decimal
	Reference uint256.Int

	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

func (e *TransferEvent) Key() IntentKey {
	return NewIntentKey(&e.Reference, e.Network)
}

// PaymentConfirmation is emitted once a referenced transfer settles a PaymentIntent.
type PaymentConfirmation struct {
	Identity  Identity
	Amount    decimal.Decimal
	Reason    string
	Reference uint256.Int
	Network   Network
	Payload   []byte
	From      common.Address
	TxHash    common.Hash
}

// PeerConfirmation is emitted once a referenced transfer settles a PeerToPeerIntent.
// Amount is the received amount; Requested is what the intent originally expected.
type PeerConfirmation struct {
	To        Identity
	From      Identity
	Amount    decimal.Decimal
	Requested decimal.Decimal
	Reason    string
	Reference uint256.Int
	Network   Network
	TxHash    common.Hash
}

// WrldError is the coded error returned across package boundaries.
type WrldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *WrldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *WrldError) Unwrap() error {
	return e.Err
}

// Is matches any *WrldError carrying the same code.
func (e *WrldError) Is(target error) bool {
	var t *WrldError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// HasCode reports whether err is a *WrldError with the given code.
func HasCode(err error, code string) bool {
	var we *WrldError
	if errors.As(err, &we) {
		return we.Code == code
	}
	return false
}

// Common error codes
const (
	ErrConfig             = "CONFIG_ERROR"
	ErrDecode             = "DECODE_ERROR"
	ErrTransport          = "TRANSPORT_ERROR"
	ErrInvalidIntent      = "INVALID_INTENT"
	ErrUnsupportedNetwork = "UNSUPPORTED_NETWORK"
	ErrDuplicateIntent    = "DUPLICATE_INTENT"
	ErrNotFound           = "NOT_FOUND"
)

// ClientConfig contains the per-network chain settings.
type ClientConfig struct {
	Network  Network
	RPCUrl   string
	ChainID  int64
	Contract common.Address

	// VerifyChainID makes the client compare ChainID with the node's eth_chainId at dial.
	VerifyChainID bool
	DialTimeout   time.Duration
}
