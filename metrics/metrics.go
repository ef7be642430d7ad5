package metrics

import "time"

// Counter names recorded by the engine.
const (
	PaymentConfirmed    = "payment_confirmed"
	PaymentMismatch     = "payment_mismatch"
	PaymentClaimLost    = "payment_claim_lost"
	PeerConfirmed       = "peer_confirmed"
	PeerAmountAdjusted  = "peer_amount_adjusted"
	TransferUntracked   = "transfer_untracked"
	BalanceUpdated      = "balance_updated"
	DecodeError         = "decode_error"
	TransportError      = "transport_error"
	NotificationDropped = "notification_dropped"
	Resubscribed        = "resubscribed"

	ReconcileLatency = "reconcile"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
