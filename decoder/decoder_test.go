package decoder

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/wrldpay/clients"
	"github.com/vitwit/wrldpay/types"
	"github.com/vitwit/wrldpay/utils"
)

var (
	alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

func wei(t *testing.T, amount string) *big.Int {
	t.Helper()
	return utils.ToWei(decimal.RequireFromString(amount))
}

func transferRefLog(t *testing.T, from, to common.Address, amount, ref *big.Int) gethtypes.Log {
	t.Helper()
	data, err := clients.TokenABI().Events[clients.EventTransferRef].Inputs.NonIndexed().Pack(amount, ref)
	require.NoError(t, err)
	return gethtypes.Log{
		Topics: []common.Hash{TransferRefTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:   data,
		TxHash: common.HexToHash("0xabc"),
		Index:  3,
	}
}

func transferLog(t *testing.T, from, to common.Address, amount *big.Int) gethtypes.Log {
	t.Helper()
	data, err := clients.TokenABI().Events[clients.EventTransfer].Inputs.NonIndexed().Pack(amount)
	require.NoError(t, err)
	return gethtypes.Log{
		Topics:      []common.Hash{TransferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        data,
		BlockNumber: 77,
	}
}

func TestTopicSignatures(t *testing.T) {
	assert.Equal(t, crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")), TransferTopic)
	assert.Equal(t, crypto.Keccak256Hash([]byte("TransferRef(address,address,uint256,uint256)")), TransferRefTopic)
	assert.Equal(t, []common.Hash{TransferRefTopic, TransferTopic}, Topics())
}

func TestDecodeTransferRef(t *testing.T) {
	d := New(types.NetworkPolygon)

	ev, err := d.Decode(transferRefLog(t, alice, bob, wei(t, "10"), big.NewInt(42)))
	require.NoError(t, err)

	assert.Equal(t, types.EventReferenced, ev.Kind)
	assert.Equal(t, types.NetworkPolygon, ev.Network)
	assert.Equal(t, alice, ev.From)
	assert.Equal(t, bob, ev.To)
	assert.True(t, ev.Amount.Equal(decimal.NewFromInt(10)), "amount %s", ev.Amount)
	assert.Equal(t, uint64(42), ev.Reference.Uint64())
	assert.Equal(t, uint(3), ev.LogIndex)
}

func TestDecodeTransfer(t *testing.T) {
	d := New(types.NetworkEthereum)

	ev, err := d.Decode(transferLog(t, bob, alice, wei(t, "0.000000000000000001")))
	require.NoError(t, err)

	assert.Equal(t, types.EventPlain, ev.Kind)
	assert.Equal(t, types.NetworkEthereum, ev.Network)
	assert.Equal(t, bob, ev.From)
	assert.Equal(t, alice, ev.To)
	assert.Equal(t, "0.000000000000000001", ev.Amount.String())
	assert.True(t, ev.Reference.IsZero())
	assert.Equal(t, uint64(77), ev.BlockNumber)
}

func TestDecodeLargeReference(t *testing.T) {
	ref, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	ev, err := New(types.NetworkPolygon).Decode(transferRefLog(t, alice, bob, wei(t, "1"), ref))
	require.NoError(t, err)
	assert.Equal(t, ref.String(), ev.Reference.Dec())
}

func TestDecodeFailures(t *testing.T) {
	d := New(types.NetworkPolygon)
	good := transferRefLog(t, alice, bob, wei(t, "1"), big.NewInt(1))

	tests := []struct {
		name   string
		mutate func(l gethtypes.Log) gethtypes.Log
		want   error
	}{
		{
			name:   "no topics",
			mutate: func(l gethtypes.Log) gethtypes.Log { l.Topics = nil; return l },
			want:   ErrMalformedLog,
		},
		{
			name: "unknown topic",
			mutate: func(l gethtypes.Log) gethtypes.Log {
				l.Topics = append([]common.Hash{crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))}, l.Topics[1:]...)
				return l
			},
			want: ErrUnknownTopic,
		},
		{
			name:   "missing indexed topic",
			mutate: func(l gethtypes.Log) gethtypes.Log { l.Topics = l.Topics[:2]; return l },
			want:   ErrMalformedLog,
		},
		{
			name:   "truncated data",
			mutate: func(l gethtypes.Log) gethtypes.Log { l.Data = l.Data[:40]; return l },
			want:   ErrMalformedLog,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(tt.mutate(cloneLog(good)))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, types.HasCode(err, types.ErrDecode))
		})
	}
}

func cloneLog(l gethtypes.Log) gethtypes.Log {
	l.Topics = append([]common.Hash(nil), l.Topics...)
	l.Data = append([]byte(nil), l.Data...)
	return l
}
