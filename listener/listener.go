// Package listener owns the log subscription for one network's token contract
// and feeds decoded events to the reconciler, in emission order.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/vitwit/wrldpay/clients"
	"github.com/vitwit/wrldpay/decoder"
	"github.com/vitwit/wrldpay/logger"
	"github.com/vitwit/wrldpay/metrics"
	"github.com/vitwit/wrldpay/reconcile"
	"github.com/vitwit/wrldpay/types"
)

var (
	// ErrStopped is returned by Run when the feed failed and the reconnect
	// strategy gave up.
	ErrStopped = errors.New("listener: stopped after transport error")
	// ErrRunning is returned when Run is called on a listener that is already running.
	ErrRunning = errors.New("listener: already running")

	errSubscriptionClosed = errors.New("subscription closed by remote")
)

// State of the subscription.
type State int32

const (
	StateStopped State = iota
	StateSubscribing
	StateActive
	StateError
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return "stopped"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Handler consumes decoded events on the feed goroutine.
type Handler interface {
	Handle(types.TransferEvent) reconcile.Outcome
}

// Status is a point-in-time view of a listener.
type Status struct {
	Network      types.Network `json:"network"`
	State        State         `json:"state"`
	LastError    string        `json:"lastError,omitempty"`
	Resubscribes uint64        `json:"resubscribes"`
	Events       uint64        `json:"events"`
}

type Listener struct {
	network  types.Network
	source   clients.LogSubscriber
	contract common.Address
	decoder  *decoder.Decoder
	handler  Handler

	newBackOff func() backoff.BackOff
	bufferSize int
	logger     logger.Logger
	metrics    metrics.Recorder

	running      atomic.Bool
	state        atomic.Int32
	resubscribes atomic.Uint64
	events       atomic.Uint64

	mu      sync.Mutex
	lastErr error
}

type Option func(*Listener)

func WithLogger(l logger.Logger) Option {
	return func(ln *Listener) {
		ln.logger = l
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(ln *Listener) {
		ln.metrics = m
	}
}

// WithBackOff sets the reconnect strategy. The factory is called once per Run.
// The default never resubscribes.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(ln *Listener) {
		if factory != nil {
			ln.newBackOff = factory
		}
	}
}

// WithBufferSize sets the capacity of the channel the subscription writes into.
func WithBufferSize(n int) Option {
	return func(ln *Listener) {
		if n > 0 {
			ln.bufferSize = n
		}
	}
}

func New(network types.Network, source clients.LogSubscriber, contract common.Address, handler Handler, opts ...Option) *Listener {
	ln := &Listener{
		network:    network,
		source:     source,
		contract:   contract,
		decoder:    decoder.New(network),
		handler:    handler,
		newBackOff: func() backoff.BackOff { return &backoff.StopBackOff{} },
		bufferSize: 128,
		logger:     logger.NoopLogger{},
		metrics:    metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(ln)
	}
	ln.logger = logger.With(ln.logger, map[string]any{"network": network.String()})
	return ln
}

func (l *Listener) Network() types.Network {
	return l.network
}

func (l *Listener) State() State {
	return State(l.state.Load())
}

func (l *Listener) Status() Status {
	s := Status{
		Network:      l.network,
		State:        l.State(),
		Resubscribes: l.resubscribes.Load(),
		Events:       l.events.Load(),
	}
	l.mu.Lock()
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	l.mu.Unlock()
	return s
}

// Query is the filter the listener subscribes with: the token contract, either
// of the two transfer signatures, new blocks only.
func (l *Listener) Query() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{l.contract},
		Topics:    [][]common.Hash{decoder.Topics()},
	}
}

// Run subscribes and feeds events until ctx is cancelled (returns nil) or the
// feed fails and the reconnect strategy stops (returns an error wrapping ErrStopped).
func (l *Listener) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)
	defer l.setState(StateStopped)

	b := l.newBackOff()
	b.Reset()

	for {
		l.setState(StateSubscribing)
		err := l.subscribe(ctx, b)
		if ctx.Err() != nil {
			l.logger.Info("listener stopped", nil)
			return nil
		}

		l.setState(StateError)
		l.setLastErr(err)
		l.metrics.IncCounter(metrics.TransportError, map[string]string{"network": l.network.String()})
		l.logger.Error("log subscription failed", map[string]any{"error": err.Error()})

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%w: %s: %w", ErrStopped, l.network, err)
		}

		l.logger.Info("resubscribing", map[string]any{"in": wait.String()})
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		l.resubscribes.Add(1)
		l.metrics.IncCounter(metrics.Resubscribed, map[string]string{"network": l.network.String()})
	}
}

func (l *Listener) subscribe(ctx context.Context, b backoff.BackOff) error {
	logs := make(chan gethtypes.Log, l.bufferSize)
	sub, err := l.source.SubscribeFilterLogs(ctx, l.Query(), logs)
	if err != nil {
		return &types.WrldError{Code: types.ErrTransport, Message: "subscribe filter logs", Err: err}
	}
	defer sub.Unsubscribe()

	l.setState(StateActive)
	l.logger.Info("listening for WRLD transfers", map[string]any{"contract": l.contract.Hex()})

	// the reconnect strategy restarts only once the feed has proven healthy
	healthy := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-sub.Err():
			if !ok || err == nil {
				err = errSubscriptionClosed
			}
			// logs the node delivered before failing are still reconciled
			l.drain(logs)
			return &types.WrldError{Code: types.ErrTransport, Message: "log subscription", Err: err}
		case lg := <-logs:
			if !healthy {
				healthy = true
				b.Reset()
			}
			l.process(lg)
		}
	}
}

func (l *Listener) drain(logs <-chan gethtypes.Log) {
	for {
		select {
		case lg := <-logs:
			l.process(lg)
		default:
			return
		}
	}
}

func (l *Listener) process(lg gethtypes.Log) {
	if lg.Removed {
		l.logger.Warn("skipping log removed by reorg", map[string]any{"tx": lg.TxHash.Hex(), "index": lg.Index})
		return
	}

	ev, err := l.decoder.Decode(lg)
	if err != nil {
		l.metrics.IncCounter(metrics.DecodeError, map[string]string{"network": l.network.String()})
		l.logger.Error("failed to decode log", map[string]any{"error": err.Error()})
		return
	}

	l.events.Add(1)
	out := l.handler.Handle(ev)
	l.logger.Debug("event reconciled", map[string]any{"tx": ev.TxHash.Hex(), "outcome": out.String()})
}

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
}

func (l *Listener) setLastErr(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
}
