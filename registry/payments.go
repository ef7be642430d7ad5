package registry

import (
	"github.com/vitwit/wrldpay/types"
)

// Payments is the pending-payment registry.
type Payments struct {
	t *table[types.PaymentIntent]
}

func NewPayments() *Payments {
	return &Payments{t: newTable(func(p *types.PaymentIntent) int64 { return p.CreatedAt.UnixNano() })}
}

// Add registers intent, replacing any intent with the same key. Uniqueness of
// non-duplicate-consumable references is the producer's responsibility.
func (r *Payments) Add(intent *types.PaymentIntent) {
	r.t.put(intent.Key(), intent)
}

// AddIfAbsent registers intent only when its key is free.
func (r *Payments) AddIfAbsent(intent *types.PaymentIntent) bool {
	return r.t.putIfAbsent(intent.Key(), intent)
}

func (r *Payments) Get(key types.IntentKey) (*types.PaymentIntent, bool) {
	return r.t.get(key)
}

// Remove deletes the intent under key.
func (r *Payments) Remove(key types.IntentKey) bool {
	return r.t.remove(key)
}

// Claim removes intent if it is still the one registered under its key. Only
// one of several concurrent callers claiming the same intent succeeds.
func (r *Payments) Claim(intent *types.PaymentIntent) bool {
	return r.t.compareAndRemove(intent.Key(), intent)
}

func (r *Payments) Len() int {
	return r.t.len()
}

// Snapshot returns copies of all pending intents, oldest first.
func (r *Payments) Snapshot() []types.PaymentIntent {
	return r.t.snapshot()
}
