package wrldpay

import (
	"github.com/vitwit/wrldpay/types"
)

// Player is the host's live handle for an online player.
type Player any

// PlayerDirectory resolves identities to live players. It is only called from
// the dispatch boundary, so implementations may touch host state freely.
type PlayerDirectory interface {
	// FindLiveIdentity returns nil when the player is not online.
	FindLiveIdentity(id types.Identity) Player
}

// DirectoryFunc adapts a function to PlayerDirectory.
type DirectoryFunc func(id types.Identity) Player

func (f DirectoryFunc) FindLiveIdentity(id types.Identity) Player {
	return f(id)
}

type offlineDirectory struct{}

func (offlineDirectory) FindLiveIdentity(types.Identity) Player { return nil }

// PlayerTransaction is delivered when a requested payment is confirmed.
// Player is nil when the paying identity is offline.
type PlayerTransaction struct {
	types.PaymentConfirmation
	Player Player
}

// PeerTransaction is delivered when a peer-to-peer payment is confirmed.
// Amount is what was received; Requested is what the intent asked for.
type PeerTransaction struct {
	types.PeerConfirmation
	Receiver Player
	Sender   Player
}

// OnPayment registers a handler for confirmed payments. Handlers run one at a
// time on the dispatch boundary, in registration order.
func (s *Service) OnPayment(fn func(PlayerTransaction)) {
	if fn == nil {
		return
	}
	s.handlersMu.Lock()
	s.paymentHandlers = append(s.paymentHandlers, fn)
	s.handlersMu.Unlock()
}

// OnPeerPayment registers a handler for confirmed peer-to-peer payments.
func (s *Service) OnPeerPayment(fn func(PeerTransaction)) {
	if fn == nil {
		return
	}
	s.handlersMu.Lock()
	s.peerHandlers = append(s.peerHandlers, fn)
	s.handlersMu.Unlock()
}

// bridge turns reconciler confirmations into host events. It runs on the
// dispatch boundary.
type bridge struct {
	s *Service
}

func (b bridge) PaymentConfirmed(c types.PaymentConfirmation) {
	tx := PlayerTransaction{
		PaymentConfirmation: c,
		Player:              b.s.directory.FindLiveIdentity(c.Identity),
	}
	if tx.Player == nil {
		b.s.logger.Debug("payment confirmed for offline player", map[string]any{"identity": c.Identity.String()})
	}

	b.s.handlersMu.RLock()
	handlers := b.s.paymentHandlers
	b.s.handlersMu.RUnlock()
	for _, h := range handlers {
		h(tx)
	}
}

func (b bridge) PeerPaymentConfirmed(c types.PeerConfirmation) {
	tx := PeerTransaction{
		PeerConfirmation: c,
		Receiver:         b.s.directory.FindLiveIdentity(c.To),
		Sender:           b.s.directory.FindLiveIdentity(c.From),
	}

	b.s.handlersMu.RLock()
	handlers := b.s.peerHandlers
	b.s.handlersMu.RUnlock()
	for _, h := range handlers {
		h(tx)
	}
}
