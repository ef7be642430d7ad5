package clients

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20 is the read-only token surface used for balance refreshes.
type ERC20 interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
}

type erc20Caller struct {
	caller ethereum.ContractCaller
	token  common.Address
	abi    abi.ABI
}

func newERC20(token common.Address, caller ethereum.ContractCaller) *erc20Caller {
	return &erc20Caller{caller: caller, token: token, abi: TokenABI()}
}

func (e *erc20Caller) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := e.abi.Pack(MethodBalanceOf, owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	out, err := e.caller.CallContract(ctx, ethereum.CallMsg{To: &e.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}

	values, err := e.abi.Unpack(MethodBalanceOf, out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	if len(values) != 1 {
		return nil, ErrUnexpectedOutput
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, ErrUnexpectedOutput
	}
	return bal, nil
}
