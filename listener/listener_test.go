package listener

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/wrldpay/clients"
	"github.com/vitwit/wrldpay/decoder"
	"github.com/vitwit/wrldpay/reconcile"
	"github.com/vitwit/wrldpay/types"
)

var (
	contract = common.HexToAddress("0x7A4c2d1f2E7b5cD0f1A0B9a9cA8b0E6d3e2F1a00")
	sender   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	receiver = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func wei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func transferLog(t *testing.T, amount int64) gethtypes.Log {
	t.Helper()
	ev := clients.TokenABI().Events[clients.EventTransfer]
	data, err := ev.Inputs.NonIndexed().Pack(wei(amount))
	require.NoError(t, err)
	return gethtypes.Log{
		Address: contract,
		Topics:  []common.Hash{ev.ID, common.BytesToHash(sender.Bytes()), common.BytesToHash(receiver.Bytes())},
		Data:    data,
	}
}

func transferRefLog(t *testing.T, amount, ref int64) gethtypes.Log {
	t.Helper()
	ev := clients.TokenABI().Events[clients.EventTransferRef]
	data, err := ev.Inputs.NonIndexed().Pack(wei(amount), big.NewInt(ref))
	require.NoError(t, err)
	return gethtypes.Log{
		Address: contract,
		Topics:  []common.Hash{ev.ID, common.BytesToHash(sender.Bytes()), common.BytesToHash(receiver.Bytes())},
		Data:    data,
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	events []types.TransferEvent
}

func (h *recordingHandler) Handle(ev types.TransferEvent) reconcile.Outcome {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	return reconcile.OutcomeIgnored
}

func (h *recordingHandler) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *recordingHandler) snapshot() []types.TransferEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.TransferEvent(nil), h.events...)
}

// fakeSource hands out one subscription per call, each driven by producer.
type fakeSource struct {
	calls    atomic.Int32
	mu       sync.Mutex
	queries  []ethereum.FilterQuery
	failWith error
	producer func(call int32, quit <-chan struct{}, ch chan<- gethtypes.Log) error
}

func (f *fakeSource) SubscribeFilterLogs(_ context.Context, q ethereum.FilterQuery, ch chan<- gethtypes.Log) (ethereum.Subscription, error) {
	call := f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		return f.producer(call, quit, ch)
	}), nil
}

func emitThenWait(logs ...gethtypes.Log) func(int32, <-chan struct{}, chan<- gethtypes.Log) error {
	return func(_ int32, quit <-chan struct{}, ch chan<- gethtypes.Log) error {
		for _, lg := range logs {
			select {
			case ch <- lg:
			case <-quit:
				return nil
			}
		}
		<-quit
		return nil
	}
}

func runAsync(ctx context.Context, l *Listener) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not return")
		return nil
	}
}

func TestListener_FeedsDecodedEventsInOrder(t *testing.T) {
	src := &fakeSource{producer: emitThenWait(
		transferRefLog(t, 10, 42),
		transferLog(t, 3),
		transferRefLog(t, 1, 43),
	)}
	h := &recordingHandler{}
	l := New(types.NetworkPolygon, src, contract, h)
	assert.Equal(t, StateStopped, l.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, l)

	require.Eventually(t, func() bool { return h.len() == 3 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateActive, l.State())

	cancel()
	require.NoError(t, wait(t, done))
	assert.Equal(t, StateStopped, l.State())

	events := h.snapshot()
	assert.Equal(t, types.EventReferenced, events[0].Kind)
	assert.Equal(t, uint64(42), events[0].Reference.Uint64())
	assert.Equal(t, types.EventPlain, events[1].Kind)
	assert.Equal(t, uint64(43), events[2].Reference.Uint64())
	for _, ev := range events {
		assert.Equal(t, types.NetworkPolygon, ev.Network)
	}
	assert.Equal(t, uint64(3), l.Status().Events)
}

func TestListener_QueryScopesContractAndTopics(t *testing.T) {
	l := New(types.NetworkEthereum, &fakeSource{}, contract, &recordingHandler{})
	q := l.Query()

	assert.Equal(t, []common.Address{contract}, q.Addresses)
	require.Len(t, q.Topics, 1)
	assert.ElementsMatch(t, []common.Hash{decoder.TransferTopic, decoder.TransferRefTopic}, q.Topics[0])
	assert.Nil(t, q.FromBlock, "no historical backfill")
	assert.Nil(t, q.ToBlock)
}

func TestListener_SkipsUndecodableAndRemovedLogs(t *testing.T) {
	bad := transferLog(t, 1)
	bad.Data = []byte{0x01}
	removed := transferLog(t, 2)
	removed.Removed = true

	src := &fakeSource{producer: emitThenWait(bad, removed, transferLog(t, 5))}
	h := &recordingHandler{}
	l := New(types.NetworkPolygon, src, contract, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, l)

	require.Eventually(t, func() bool { return h.len() == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, wait(t, done))

	assert.Equal(t, "5", h.snapshot()[0].Amount.String())
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestListener_FailStopByDefault(t *testing.T) {
	src := &fakeSource{producer: func(int32, <-chan struct{}, chan<- gethtypes.Log) error {
		return errors.New("websocket: close 1006")
	}}
	l := New(types.NetworkPolygon, src, contract, &recordingHandler{})

	err := wait(t, runAsync(context.Background(), l))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, StateStopped, l.State())
	assert.Contains(t, l.Status().LastError, "close 1006")
}

func TestListener_ReconcilesBufferedLogsBeforeFailing(t *testing.T) {
	const n = 50
	logs := make([]gethtypes.Log, 0, n)
	for i := int64(1); i <= n; i++ {
		logs = append(logs, transferRefLog(t, i, i))
	}
	src := &fakeSource{producer: func(_ int32, _ <-chan struct{}, ch chan<- gethtypes.Log) error {
		for _, lg := range logs {
			ch <- lg
		}
		return errors.New("ws: connection reset")
	}}
	h := &recordingHandler{}
	l := New(types.NetworkPolygon, src, contract, h)

	err := wait(t, runAsync(context.Background(), l))
	assert.ErrorIs(t, err, ErrStopped)
	assert.True(t, types.HasCode(err, types.ErrTransport))

	got := h.snapshot()
	require.Len(t, got, n)
	for i, ev := range got {
		assert.Equal(t, uint64(i+1), ev.Reference.Uint64())
	}
	assert.Equal(t, uint64(n), l.Status().Events)
}

func TestListener_SubscribeErrorIsTransportError(t *testing.T) {
	src := &fakeSource{failWith: errors.New("dial tcp: connection refused")}
	l := New(types.NetworkEthereum, src, contract, &recordingHandler{})

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Contains(t, l.Status().LastError, "connection refused")
}

func TestListener_ResubscribesWithBackOff(t *testing.T) {
	healthy := emitThenWait(transferLog(t, 1))
	src := &fakeSource{producer: func(call int32, quit <-chan struct{}, ch chan<- gethtypes.Log) error {
		if call < 3 {
			return errors.New("feed dropped")
		}
		return healthy(call, quit, ch)
	}}
	h := &recordingHandler{}
	l := New(types.NetworkPolygon, src, contract, h, WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, l)

	require.Eventually(t, func() bool { return h.len() == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, wait(t, done))

	assert.Equal(t, int32(3), src.calls.Load())
	assert.Equal(t, uint64(2), l.Status().Resubscribes)
}

func TestListener_BackOffGivesUp(t *testing.T) {
	src := &fakeSource{producer: func(int32, <-chan struct{}, chan<- gethtypes.Log) error {
		return errors.New("feed dropped")
	}}
	l := New(types.NetworkPolygon, src, contract, &recordingHandler{}, WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
	}))

	err := wait(t, runAsync(context.Background(), l))
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestListener_RemoteCloseIsTransportError(t *testing.T) {
	src := &fakeSource{producer: func(int32, <-chan struct{}, chan<- gethtypes.Log) error {
		return nil
	}}
	l := New(types.NetworkPolygon, src, contract, &recordingHandler{})

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.True(t, types.HasCode(err, types.ErrTransport))
	assert.Contains(t, err.Error(), "subscription closed by remote")
}

func TestListener_RunTwice(t *testing.T) {
	src := &fakeSource{producer: emitThenWait()}
	l := New(types.NetworkPolygon, src, contract, &recordingHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, l)
	require.Eventually(t, func() bool { return l.State() == StateActive }, 5*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, l.Run(ctx), ErrRunning)
	cancel()
	require.NoError(t, wait(t, done))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "subscribing", StateSubscribing.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "error", StateError.String())
}
