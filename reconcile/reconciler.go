// Package reconcile matches decoded WRLD transfers against pending intents,
// keeps the wallet balance cache current and hands confirmations to the
// dispatch boundary.
//
// Handle is called from a single feed goroutine per network. Registry and
// cache mutations are guarded by their own locks, so several feeds may share
// one Reconciler; the registries' compare-and-remove keeps a non-duplicate
// payment from being confirmed twice.
package reconcile

import (
	"time"

	"github.com/vitwit/wrldpay/dispatch"
	"github.com/vitwit/wrldpay/logger"
	"github.com/vitwit/wrldpay/metrics"
	"github.com/vitwit/wrldpay/registry"
	"github.com/vitwit/wrldpay/types"
	"github.com/vitwit/wrldpay/wallets"
)

// Notifier receives confirmations. Its methods run on the dispatch boundary,
// never on the feed goroutine.
type Notifier interface {
	PaymentConfirmed(types.PaymentConfirmation)
	PeerPaymentConfirmed(types.PeerConfirmation)
}

// NotifierFuncs adapts plain functions to Notifier. Nil fields are skipped.
type NotifierFuncs struct {
	Payment func(types.PaymentConfirmation)
	Peer    func(types.PeerConfirmation)
}

func (n NotifierFuncs) PaymentConfirmed(c types.PaymentConfirmation) {
	if n.Payment != nil {
		n.Payment(c)
	}
}

func (n NotifierFuncs) PeerPaymentConfirmed(c types.PeerConfirmation) {
	if n.Peer != nil {
		n.Peer(c)
	}
}

// Outcome is the result of reconciling one event.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeUntracked
	OutcomePaymentConfirmed
	OutcomePaymentMismatch
	OutcomeClaimLost
	OutcomePeerConfirmed
	OutcomeBalanceUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUntracked:
		return "untracked"
	case OutcomePaymentConfirmed:
		return "payment_confirmed"
	case OutcomePaymentMismatch:
		return "payment_mismatch"
	case OutcomeClaimLost:
		return "claim_lost"
	case OutcomePeerConfirmed:
		return "peer_confirmed"
	case OutcomeBalanceUpdated:
		return "balance_updated"
	default:
		return "ignored"
	}
}

// Reconciler owns no state of its own; it is handed the registries and cache
// it works on.
type Reconciler struct {
	payments   *registry.Payments
	peers      *registry.Peers
	wallets    *wallets.Cache
	dispatcher dispatch.Dispatcher
	notifier   Notifier

	logger  logger.Logger
	metrics metrics.Recorder
}

type Option func(*Reconciler)

func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

func New(
	payments *registry.Payments,
	peers *registry.Peers,
	cache *wallets.Cache,
	dispatcher dispatch.Dispatcher,
	notifier Notifier,
	opts ...Option,
) *Reconciler {
	r := &Reconciler{
		payments:   payments,
		peers:      peers,
		wallets:    cache,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger.NoopLogger{},
		metrics:    metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.notifier == nil {
		r.notifier = NotifierFuncs{}
	}
	return r
}

// Handle reconciles a single decoded event. It never blocks on the notifier.
func (r *Reconciler) Handle(ev types.TransferEvent) Outcome {
	start := time.Now()
	labels := map[string]string{"network": ev.Network.String()}

	r.logger.Debug("transfer observed", map[string]any{
		"kind":    ev.Kind.String(),
		"network": ev.Network.String(),
		"from":    ev.From.Hex(),
		"to":      ev.To.Hex(),
		"amount":  ev.Amount.String(),
		"tx":      ev.TxHash.Hex(),
	})

	var out Outcome
	switch ev.Kind {
	case types.EventReferenced:
		out = r.handleReferenced(&ev, labels)
	case types.EventPlain:
		out = r.handleTransfer(&ev, labels)
	default:
		r.logger.Warn("unknown transfer kind", map[string]any{"kind": int(ev.Kind), "tx": ev.TxHash.Hex()})
		out = OutcomeIgnored
	}

	r.metrics.ObserveLatency(metrics.ReconcileLatency, time.Since(start), labels)
	return out
}

func (r *Reconciler) handleReferenced(ev *types.TransferEvent, labels map[string]string) Outcome {
	key := ev.Key()

	if intent, ok := r.payments.Get(key); ok {
		r.logger.Debug("found in payment requests", map[string]any{"key": key.String()})
		return r.settlePayment(ev, intent, labels)
	}

	if intent, ok := r.peers.Take(key); ok {
		r.logger.Debug("found in peer payments", map[string]any{"key": key.String()})
		return r.settlePeer(ev, intent, labels)
	}

	r.logger.Debug("referenced transfer matched no intent", map[string]any{"key": key.String()})
	r.metrics.IncCounter(metrics.TransferUntracked, labels)
	return OutcomeUntracked
}

func (r *Reconciler) settlePayment(ev *types.TransferEvent, intent *types.PaymentIntent, labels map[string]string) Outcome {
	r.logger.Debug("requested/received", map[string]any{
		"requested": intent.ExpectedAmount.String(),
		"received":  ev.Amount.String(),
	})

	if !ev.Amount.Equal(intent.ExpectedAmount) {
		r.logger.Warn("payment amount mismatch", map[string]any{
			"reference": ev.Reference.Dec(),
			"network":   ev.Network.String(),
			"expected":  intent.ExpectedAmount.String(),
			"received":  ev.Amount.String(),
			"tx":        ev.TxHash.Hex(),
		})
		r.metrics.IncCounter(metrics.PaymentMismatch, labels)
		return OutcomePaymentMismatch
	}

	if !intent.AllowDuplicateConsumption && !r.payments.Claim(intent) {
		r.logger.Debug("payment already claimed", map[string]any{"reference": ev.Reference.Dec()})
		r.metrics.IncCounter(metrics.PaymentClaimLost, labels)
		return OutcomeClaimLost
	}

	conf := types.PaymentConfirmation{
		Identity:  intent.Identity,
		Amount:    ev.Amount,
		Reason:    intent.Reason,
		Reference: ev.Reference,
		Network:   ev.Network,
		Payload:   append([]byte(nil), intent.Payload...),
		From:      ev.From,
		TxHash:    ev.TxHash,
	}
	if r.schedule(func() { r.notifier.PaymentConfirmed(conf) }, labels) {
		r.logger.Debug("event fired", map[string]any{"reference": ev.Reference.Dec(), "type": "payment"})
	}
	r.metrics.IncCounter(metrics.PaymentConfirmed, labels)
	return OutcomePaymentConfirmed
}

// settlePeer is called with an intent already removed from the registry.
func (r *Reconciler) settlePeer(ev *types.TransferEvent, intent *types.PeerToPeerIntent, labels map[string]string) Outcome {
	requested := intent.ExpectedAmount
	if !ev.Amount.Equal(requested) {
		r.logger.Info("peer payment amount differs from request", map[string]any{
			"reference": ev.Reference.Dec(),
			"network":   ev.Network.String(),
			"requested": requested.String(),
			"received":  ev.Amount.String(),
		})
		intent.ExpectedAmount = ev.Amount
		r.metrics.IncCounter(metrics.PeerAmountAdjusted, labels)
	}

	conf := types.PeerConfirmation{
		To:        intent.To,
		From:      intent.From,
		Amount:    ev.Amount,
		Requested: requested,
		Reason:    intent.Reason,
		Reference: ev.Reference,
		Network:   ev.Network,
		TxHash:    ev.TxHash,
	}
	if r.schedule(func() { r.notifier.PeerPaymentConfirmed(conf) }, labels) {
		r.logger.Debug("event fired", map[string]any{"reference": ev.Reference.Dec(), "type": "peer"})
	}
	r.metrics.IncCounter(metrics.PeerConfirmed, labels)
	return OutcomePeerConfirmed
}

func (r *Reconciler) handleTransfer(ev *types.TransferEvent, labels map[string]string) Outcome {
	sender, receiver := r.wallets.ApplyTransfer(ev.Network, ev.From, ev.To, ev.Amount)
	if !sender && !receiver {
		r.metrics.IncCounter(metrics.TransferUntracked, labels)
		return OutcomeUntracked
	}

	r.logger.Debug("balance updated", map[string]any{
		"network":  ev.Network.String(),
		"sender":   sender,
		"receiver": receiver,
		"amount":   ev.Amount.String(),
	})
	r.metrics.IncCounter(metrics.BalanceUpdated, labels)
	return OutcomeBalanceUpdated
}

func (r *Reconciler) schedule(task dispatch.Task, labels map[string]string) bool {
	if err := r.dispatcher.Schedule(task); err != nil {
		r.logger.Warn("notification dropped", map[string]any{"error": err.Error()})
		r.metrics.IncCounter(metrics.NotificationDropped, labels)
		return false
	}
	return true
}
