package wrldpay

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vitwit/wrldpay/metrics"
	"github.com/vitwit/wrldpay/types"
)

// TrackPlayer starts caching balances for the player's linked wallets.
// Call it before the player joins so the first transfers are not missed.
func (s *Service) TrackPlayer(id types.Identity, addrs ...common.Address) error {
	s.wallets.Track(id)
	for _, addr := range addrs {
		if err := s.wallets.Link(id, addr); err != nil {
			return &types.WrldError{Code: types.ErrInvalidIntent, Message: fmt.Sprintf("link wallet for %s", id), Err: err}
		}
	}
	return nil
}

// ForgetPlayer drops the player's cached wallets, e.g. when they quit.
func (s *Service) ForgetPlayer(id types.Identity) bool {
	return s.wallets.Forget(id)
}

// Wallets returns copies of the player's wallets with cached balances.
func (s *Service) Wallets(id types.Identity) []types.Wallet {
	return s.wallets.Wallets(id)
}

// Balance returns the cached balance of all the player's wallets on network.
func (s *Service) Balance(id types.Identity, network types.Network) decimal.Decimal {
	return s.wallets.Balance(id, network)
}

// RefreshBalances replaces the cached balances of the player's wallets with the
// on-chain balanceOf of every connected network.
func (s *Service) RefreshBalances(ctx context.Context, id types.Identity) error {
	if !s.wallets.IsTracked(id) {
		return &types.WrldError{Code: types.ErrNotFound, Message: fmt.Sprintf("player %s is not tracked", id)}
	}

	var errs []error
	for _, w := range s.wallets.Wallets(id) {
		for _, n := range types.Networks() {
			client, ok := s.clients[n]
			if !ok {
				continue
			}
			callCtx, cancel := context.WithTimeout(ctx, s.balanceWait)
			bal, err := client.BalanceOf(callCtx, w.Address)
			cancel()
			if err != nil {
				s.metrics.IncCounter(metrics.TransportError, map[string]string{"network": n.String()})
				errs = append(errs, fmt.Errorf("%s balance of %s: %w", n, w.Address.Hex(), err))
				continue
			}
			s.wallets.SetBalance(w.Address, n, bal)
		}
	}
	return errors.Join(errs...)
}
