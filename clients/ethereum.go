package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/vitwit/wrldpay/types"
	"github.com/vitwit/wrldpay/utils"
)

var _ Client = (*EVMClient)(nil)

const defaultDialTimeout = 10 * time.Second

// EVMClient connects to one network's RPC endpoint and WRLD token contract.
// Log subscriptions need a websocket (or IPC) endpoint.
type EVMClient struct {
	rpcURL   string
	network  types.Network
	contract common.Address
	client   *ethclient.Client
	token    ERC20
}

// NewEVMClient dials the configured endpoint. When cfg.VerifyChainID is set
// the node's chain id must equal cfg.ChainID.
func NewEVMClient(ctx context.Context, cfg types.ClientConfig) (*EVMClient, error) {
	rpcURL := strings.TrimSpace(cfg.RPCUrl)
	if rpcURL == "" {
		return nil, ErrEmptyRPCURL
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, rpcURL)
	if err != nil {
		return nil, &types.WrldError{
			Code:    types.ErrTransport,
			Message: fmt.Sprintf("failed to connect to %s RPC", cfg.Network),
			Err:     err,
		}
	}

	if cfg.VerifyChainID {
		chainID, err := client.ChainID(dialCtx)
		if err != nil {
			client.Close()
			return nil, &types.WrldError{
				Code:    types.ErrTransport,
				Message: fmt.Sprintf("failed to read %s chain id", cfg.Network),
				Err:     err,
			}
		}
		if !chainID.IsInt64() || chainID.Int64() != cfg.ChainID {
			client.Close()
			return nil, &types.WrldError{
				Code:    types.ErrConfig,
				Message: fmt.Sprintf("%s node reports chain id %s, configured %d", cfg.Network, chainID, cfg.ChainID),
				Err:     ErrChainIDMismatch,
			}
		}
	}

	return &EVMClient{
		rpcURL:   rpcURL,
		network:  cfg.Network,
		contract: cfg.Contract,
		client:   client,
		token:    newERC20(cfg.Contract, client),
	}, nil
}

// SubscribeFilterLogs implements LogSubscriber.
func (e *EVMClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- gethtypes.Log) (ethereum.Subscription, error) {
	return e.client.SubscribeFilterLogs(ctx, q, ch)
}

// BalanceOf returns the on-chain WRLD balance of owner as a decimal.
func (e *EVMClient) BalanceOf(ctx context.Context, owner common.Address) (decimal.Decimal, error) {
	raw, err := e.token.BalanceOf(ctx, owner)
	if err != nil {
		return decimal.Zero, &types.WrldError{
			Code:    types.ErrTransport,
			Message: fmt.Sprintf("balanceOf %s on %s", owner.Hex(), e.network),
			Err:     err,
		}
	}
	return utils.FromWei(raw), nil
}

// Contract implements Client.
func (e *EVMClient) Contract() common.Address {
	return e.contract
}

// GetNetwork implements Client.
func (e *EVMClient) GetNetwork() types.Network {
	return e.network
}

// Close implements Client.
func (e *EVMClient) Close() {
	if e.client != nil {
		e.client.Close()
	}
}
