package wallets

import (
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/wrldpay/types"
)

var (
	addrA    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	addrB    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	addrC    = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	exchange = common.HexToAddress("0x9999999999999999999999999999999999999999")
)

func seeded(t *testing.T) (*Cache, types.Identity, types.Identity) {
	t.Helper()
	c := New()
	alice, bob := uuid.New(), uuid.New()
	require.NoError(t, c.Link(alice, addrA))
	require.NoError(t, c.Link(bob, addrB))
	require.True(t, c.SetBalance(addrA, types.NetworkPolygon, decimal.NewFromInt(100)))
	require.True(t, c.SetBalance(addrB, types.NetworkPolygon, decimal.NewFromInt(5)))
	return c, alice, bob
}

func TestApplyTransferBetweenTrackedWallets(t *testing.T) {
	c, alice, bob := seeded(t)

	sender, receiver := c.ApplyTransfer(types.NetworkPolygon, addrA, addrB, decimal.RequireFromString("12.5"))
	assert.True(t, sender)
	assert.True(t, receiver)

	assert.Equal(t, "87.5", c.Balance(alice, types.NetworkPolygon).String())
	assert.Equal(t, "17.5", c.Balance(bob, types.NetworkPolygon).String())
	assert.True(t, c.Balance(alice, types.NetworkEthereum).IsZero(), "other chain untouched")
}

func TestApplyTransferUnknownCounterparty(t *testing.T) {
	c, alice, _ := seeded(t)

	sender, receiver := c.ApplyTransfer(types.NetworkPolygon, addrA, exchange, decimal.NewFromInt(40))
	assert.True(t, sender)
	assert.False(t, receiver)
	assert.Equal(t, "60", c.Balance(alice, types.NetworkPolygon).String())

	sender, receiver = c.ApplyTransfer(types.NetworkPolygon, exchange, common.Address{}, decimal.NewFromInt(1))
	assert.False(t, sender)
	assert.False(t, receiver)
}

func TestApplyTransferSelfTransferNetsZero(t *testing.T) {
	c, alice, _ := seeded(t)

	sender, receiver := c.ApplyTransfer(types.NetworkPolygon, addrA, addrA, decimal.NewFromInt(7))
	assert.True(t, sender)
	assert.True(t, receiver)
	assert.Equal(t, "100", c.Balance(alice, types.NetworkPolygon).String())
}

func TestLinkMatchesCaseInsensitively(t *testing.T) {
	c := New()
	id := uuid.New()
	require.NoError(t, c.Link(id, common.HexToAddress(strings.ToLower(addrC.Hex()))))

	sender, _ := c.ApplyTransfer(types.NetworkEthereum, common.HexToAddress(strings.ToUpper("0x"+addrC.Hex()[2:])), exchange, decimal.NewFromInt(1))
	assert.True(t, sender)
	assert.Equal(t, "-1", c.Balance(id, types.NetworkEthereum).String())
}

func TestLinkRejectsAddressOfAnotherPlayer(t *testing.T) {
	c, alice, bob := seeded(t)

	assert.NoError(t, c.Link(alice, addrA), "relinking own wallet is a no-op")
	assert.ErrorIs(t, c.Link(bob, addrA), ErrAddressTracked)
	assert.Len(t, c.Wallets(alice), 1)
}

func TestForget(t *testing.T) {
	c, alice, bob := seeded(t)

	assert.True(t, c.Forget(alice))
	assert.False(t, c.Forget(alice))
	assert.False(t, c.IsTracked(alice))
	assert.True(t, c.IsTracked(bob))

	sender, _ := c.ApplyTransfer(types.NetworkPolygon, addrA, addrB, decimal.NewFromInt(1))
	assert.False(t, sender)
}

func TestWalletsReturnsCopies(t *testing.T) {
	c, alice, _ := seeded(t)

	ws := c.Wallets(alice)
	require.Len(t, ws, 1)
	ws[0].PolygonBalance = decimal.NewFromInt(1)

	assert.Equal(t, "100", c.Balance(alice, types.NetworkPolygon).String())
}

func TestApplyTransferConcurrentWithReaders(t *testing.T) {
	c, alice, bob := seeded(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			total := c.Balance(alice, types.NetworkPolygon).Add(c.Balance(bob, types.NetworkPolygon))
			_ = total
			_ = c.Wallets(bob)
		}
	}()

	for i := 0; i < 100; i++ {
		c.ApplyTransfer(types.NetworkPolygon, addrA, addrB, decimal.NewFromInt(1))
	}
	wg.Wait()

	assert.Equal(t, "0", c.Balance(alice, types.NetworkPolygon).String())
	assert.Equal(t, "105", c.Balance(bob, types.NetworkPolygon).String())
}
