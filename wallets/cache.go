// Package wallets caches linked player wallets and their WRLD balances per chain.
package wallets

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vitwit/wrldpay/types"
)

// ErrAddressTracked is returned when linking an address already owned by another player.
var ErrAddressTracked = errors.New("wallets: address already linked to another player")

// Cache is the wallet balance cache. Balances are a best-effort mirror of
// on-chain state, updated incrementally from observed transfers.
type Cache struct {
	mu      sync.RWMutex
	players map[types.Identity][]*types.Wallet
	order   []types.Identity
}

func New() *Cache {
	return &Cache{players: make(map[types.Identity][]*types.Wallet)}
}

// Track registers a player with no wallets. Tracking twice is a no-op.
func (c *Cache) Track(id types.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackLocked(id)
}

func (c *Cache) trackLocked(id types.Identity) {
	if _, ok := c.players[id]; ok {
		return
	}
	c.players[id] = nil
	c.order = append(c.order, id)
}

// Link attaches a wallet address to a player with zero cached balances.
// Linking the same address to the same player twice is a no-op.
func (c *Cache) Link(id types.Identity, addr common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for owner, wallets := range c.players {
		for _, w := range wallets {
			if w.Address != addr {
				continue
			}
			if owner == id {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrAddressTracked, addr.Hex())
		}
	}

	c.trackLocked(id)
	c.players[id] = append(c.players[id], &types.Wallet{
		Address:         addr,
		Owner:           id,
		PolygonBalance:  decimal.Zero,
		EthereumBalance: decimal.Zero,
	})
	return nil
}

// Forget drops a player and all their wallets.
func (c *Cache) Forget(id types.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.players[id]; !ok {
		return false
	}
	delete(c.players, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// IsTracked reports whether the player is known to the cache.
func (c *Cache) IsTracked(id types.Identity) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.players[id]
	return ok
}

// Wallets returns copies of the player's wallets.
func (c *Cache) Wallets(id types.Identity) []types.Wallet {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.Wallet, 0, len(c.players[id]))
	for _, w := range c.players[id] {
		out = append(out, *w)
	}
	return out
}

// Balance sums the player's cached balances on a network.
func (c *Cache) Balance(id types.Identity, network types.Network) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := decimal.Zero
	for _, w := range c.players[id] {
		total = total.Add(w.Balance(network))
	}
	return total
}

// SetBalance overwrites the cached balance of addr, typically with a fresh
// on-chain balanceOf result.
func (c *Cache) SetBalance(addr common.Address, network types.Network, amount decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.order {
		for _, w := range c.players[id] {
			if w.Address == addr {
				w.SetBalance(network, amount)
				return true
			}
		}
	}
	return false
}

// ApplyTransfer debits the wallet matching from and credits the wallet
// matching to on the given network. The scan stops as soon as both sides are
// found; addresses are expected to be unique across players. Both updates are
// applied under one lock, so readers see either neither or both.
func (c *Cache) ApplyTransfer(network types.Network, from, to common.Address, amount decimal.Decimal) (foundSender, foundReceiver bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.order {
		for _, w := range c.players[id] {
			if w.Address == from {
				w.SetBalance(network, w.Balance(network).Sub(amount))
				foundSender = true
			}
			if w.Address == to {
				w.SetBalance(network, w.Balance(network).Add(amount))
				foundReceiver = true
			}
			if foundSender && foundReceiver {
				return
			}
		}
	}
	return
}
