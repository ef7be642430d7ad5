package clients

import (
	"context"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/vitwit/wrldpay/types"
)

// LogSubscriber is the Chain Log Source: a push subscription of contract logs
// delivered in emission order. *ethclient.Client satisfies it.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- gethtypes.Log) (ethereum.Subscription, error)
}

// BalanceReader reads authoritative on-chain token balances.
type BalanceReader interface {
	BalanceOf(ctx context.Context, owner common.Address) (decimal.Decimal, error)
}

// Client is a connection to one network's WRLD token contract.
type Client interface {
	LogSubscriber
	BalanceReader
	Contract() common.Address
	GetNetwork() types.Network
	Close()
}
