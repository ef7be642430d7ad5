package wrldpay

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/vitwit/wrldpay/types"
)

// PaymentRequest asks a player to pay the application.
type PaymentRequest struct {
	// Reference is generated when nil.
	Reference *uint256.Int
	Network   types.Network
	Amount    decimal.Decimal
	Identity  types.Identity
	Reason    string
	Payload   []byte

	// AllowDuplicate keeps the request pending after it is paid.
	AllowDuplicate bool
}

// PeerPaymentRequest tracks a transfer from one player to another.
type PeerPaymentRequest struct {
	Reference *uint256.Int
	Network   types.Network
	Amount    decimal.Decimal
	From      types.Identity
	To        types.Identity
	Reason    string
}

// NewReference returns a random 128-bit reference id.
func NewReference() *uint256.Int {
	id := uuid.New()
	return new(uint256.Int).SetBytes(id[:])
}

// RequestPayment registers a pending payment and returns it. A reference that
// is already pending on the same network is rejected with DUPLICATE_INTENT.
func (s *Service) RequestPayment(req PaymentRequest) (types.PaymentIntent, error) {
	ref := req.Reference
	if ref == nil {
		ref = NewReference()
	}
	intent := &types.PaymentIntent{
		Reference:                 *ref,
		Network:                   req.Network,
		ExpectedAmount:            req.Amount,
		Identity:                  req.Identity,
		Reason:                    req.Reason,
		Payload:                   append([]byte(nil), req.Payload...),
		AllowDuplicateConsumption: req.AllowDuplicate,
		CreatedAt:                 s.now(),
	}
	if err := intent.Validate(); err != nil {
		return types.PaymentIntent{}, err
	}
	s.intentsMu.Lock()
	defer s.intentsMu.Unlock()
	if _, taken := s.peers.Get(intent.Key()); taken {
		return types.PaymentIntent{}, duplicate(intent.Key())
	}
	if !s.payments.AddIfAbsent(intent) {
		return types.PaymentIntent{}, duplicate(intent.Key())
	}

	s.logger.Debug("payment requested", map[string]any{
		"key":      intent.Key().String(),
		"amount":   intent.ExpectedAmount.String(),
		"identity": intent.Identity.String(),
	})
	return *intent, nil
}

// RequestPeerPayment registers a pending peer-to-peer payment.
func (s *Service) RequestPeerPayment(req PeerPaymentRequest) (types.PeerToPeerIntent, error) {
	ref := req.Reference
	if ref == nil {
		ref = NewReference()
	}
	intent := &types.PeerToPeerIntent{
		Reference:      *ref,
		Network:        req.Network,
		ExpectedAmount: req.Amount,
		From:           req.From,
		To:             req.To,
		Reason:         req.Reason,
		CreatedAt:      s.now(),
	}
	if err := intent.Validate(); err != nil {
		return types.PeerToPeerIntent{}, err
	}
	s.intentsMu.Lock()
	defer s.intentsMu.Unlock()
	if _, taken := s.payments.Get(intent.Key()); taken {
		return types.PeerToPeerIntent{}, duplicate(intent.Key())
	}
	if !s.peers.AddIfAbsent(intent) {
		return types.PeerToPeerIntent{}, duplicate(intent.Key())
	}

	s.logger.Debug("peer payment requested", map[string]any{
		"key":    intent.Key().String(),
		"amount": intent.ExpectedAmount.String(),
	})
	return *intent, nil
}

// CancelPayment drops a pending payment or peer payment.
func (s *Service) CancelPayment(ref *uint256.Int, network types.Network) error {
	key := types.NewIntentKey(ref, network)
	if s.payments.Remove(key) || s.peers.Remove(key) {
		return nil
	}
	return &types.WrldError{Code: types.ErrNotFound, Message: fmt.Sprintf("no pending payment %s", key)}
}

// PendingPayments returns a snapshot of pending payments, oldest first.
func (s *Service) PendingPayments() []types.PaymentIntent {
	return s.payments.Snapshot()
}

// PendingPeerPayments returns a snapshot of pending peer payments, oldest first.
func (s *Service) PendingPeerPayments() []types.PeerToPeerIntent {
	return s.peers.Snapshot()
}

func duplicate(key types.IntentKey) error {
	return &types.WrldError{Code: types.ErrDuplicateIntent, Message: fmt.Sprintf("reference %s is already pending", key)}
}
