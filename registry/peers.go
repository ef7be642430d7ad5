package registry

import (
	"github.com/vitwit/wrldpay/types"
)

// Peers is the peer-to-peer registry. Peer intents are always single use.
type Peers struct {
	t *table[types.PeerToPeerIntent]
}

func NewPeers() *Peers {
	return &Peers{t: newTable(func(p *types.PeerToPeerIntent) int64 { return p.CreatedAt.UnixNano() })}
}

func (r *Peers) Add(intent *types.PeerToPeerIntent) {
	r.t.put(intent.Key(), intent)
}

func (r *Peers) AddIfAbsent(intent *types.PeerToPeerIntent) bool {
	return r.t.putIfAbsent(intent.Key(), intent)
}

func (r *Peers) Get(key types.IntentKey) (*types.PeerToPeerIntent, bool) {
	return r.t.get(key)
}

// Take removes and returns the intent under key.
func (r *Peers) Take(key types.IntentKey) (*types.PeerToPeerIntent, bool) {
	return r.t.take(key)
}

func (r *Peers) Remove(key types.IntentKey) bool {
	return r.t.remove(key)
}

func (r *Peers) Len() int {
	return r.t.len()
}

func (r *Peers) Snapshot() []types.PeerToPeerIntent {
	return r.t.snapshot()
}
