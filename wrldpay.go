// Package wrldpay reconciles on-chain WRLD token transfers on Ethereum and
// Polygon with payments a game server is waiting for.
//
// A Service owns the pending-payment and peer-to-peer registries, the wallet
// balance cache, one log listener per network and the dispatch queue that runs
// payment handlers one at a time, in the order transfers were observed.
package wrldpay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vitwit/wrldpay/clients"
	"github.com/vitwit/wrldpay/config"
	"github.com/vitwit/wrldpay/dispatch"
	"github.com/vitwit/wrldpay/listener"
	"github.com/vitwit/wrldpay/logger"
	"github.com/vitwit/wrldpay/metrics"
	"github.com/vitwit/wrldpay/reconcile"
	"github.com/vitwit/wrldpay/registry"
	"github.com/vitwit/wrldpay/types"
	"github.com/vitwit/wrldpay/wallets"
)

// Service is the main struct that provides all wrldpay functionality.
type Service struct {
	payments   *registry.Payments
	peers      *registry.Peers
	wallets    *wallets.Cache
	queue      *dispatch.Queue
	reconciler *reconcile.Reconciler

	// intentsMu makes the cross-registry duplicate check and the insert atomic
	intentsMu sync.Mutex

	clients   map[types.Network]clients.Client
	listeners map[types.Network]*listener.Listener

	directory       PlayerDirectory
	handlersMu      sync.RWMutex
	paymentHandlers []func(PlayerTransaction)
	peerHandlers    []func(PeerTransaction)

	logger      logger.Logger
	metrics     metrics.Recorder
	backOff     func() backoff.BackOff
	bufferSize  int
	hostPumped  bool
	now         func() time.Time
	balanceWait time.Duration

	mu        sync.Mutex
	started   bool
	closed    bool
	cancel    context.CancelFunc
	feeds     sync.WaitGroup
	consumer  sync.WaitGroup
	closeOnce sync.Once
}

// New dials both networks from cfg and builds a Service. Nothing is
// subscribed until Start.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Service, error) {
	dialed := make(map[types.Network]clients.Client, 2)
	for _, n := range types.Networks() {
		cc, err := cfg.ClientConfig(n)
		if err != nil {
			closeClients(dialed)
			return nil, err
		}
		client, err := clients.NewEVMClient(ctx, cc)
		if err != nil {
			closeClients(dialed)
			return nil, fmt.Errorf("failed to create %s client: %w", n, err)
		}
		dialed[n] = client
	}

	base := []Option{
		WithReconnect(cfg.Reconnect.BackOff()),
		WithBufferSize(cfg.Listener.BufferSize),
	}
	return NewWithClients(dialed, append(base, opts...)...), nil
}

// NewWithClients builds a Service around already connected clients, one per
// network to listen on.
func NewWithClients(cls map[types.Network]clients.Client, opts ...Option) *Service {
	s := &Service{
		payments:    registry.NewPayments(),
		peers:       registry.NewPeers(),
		wallets:     wallets.New(),
		clients:     make(map[types.Network]clients.Client, len(cls)),
		listeners:   make(map[types.Network]*listener.Listener, len(cls)),
		directory:   offlineDirectory{},
		logger:      logger.NoopLogger{},
		metrics:     metrics.NoopRecorder{},
		backOff:     func() backoff.BackOff { return &backoff.StopBackOff{} },
		bufferSize:  128,
		now:         time.Now,
		balanceWait: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.queue = dispatch.NewQueue(dispatch.WithPanicHandler(func(r any) {
		s.logger.Error("payment handler panicked", map[string]any{"panic": fmt.Sprint(r)})
	}))
	s.reconciler = reconcile.New(s.payments, s.peers, s.wallets, s.queue, bridge{s},
		reconcile.WithLogger(s.logger),
		reconcile.WithMetrics(s.metrics),
	)

	for n, c := range cls {
		s.clients[n] = c
		s.listeners[n] = listener.New(n, c, c.Contract(), s.reconciler,
			listener.WithLogger(s.logger),
			listener.WithMetrics(s.metrics),
			listener.WithBackOff(s.backOff),
			listener.WithBufferSize(s.bufferSize),
		)
	}
	return s
}

// Start subscribes every network and, unless the host pumps the queue itself,
// starts the dispatch consumer. Listeners stop when ctx is cancelled or Close
// is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dispatch.ErrClosed
	}
	if s.started {
		return errors.New("wrldpay: already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if !s.hostPumped {
		s.consumer.Add(1)
		go func() {
			defer s.consumer.Done()
			// Run returns once Close has drained the queue
			_ = s.queue.Run(context.Background())
		}()
	}

	for _, n := range types.Networks() {
		l, ok := s.listeners[n]
		if !ok {
			continue
		}
		s.feeds.Add(1)
		go func(l *listener.Listener) {
			defer s.feeds.Done()
			if err := l.Run(runCtx); err != nil {
				s.logger.Error("listener stopped", map[string]any{
					"network": l.Network().String(),
					"error":   err.Error(),
				})
			}
		}(l)
	}

	s.logger.Info("wrldpay started", map[string]any{"networks": len(s.listeners), "hostPumped": s.hostPumped})
	return nil
}

// Dispatch runs queued payment handlers on the calling goroutine. Hosts that
// set WithHostDispatch call it from their main loop; it is harmless otherwise.
func (s *Service) Dispatch() int {
	return s.queue.Drain()
}

// Close unsubscribes every listener, lets already queued handlers finish and
// closes the clients. Nothing is scheduled after Close returns. With
// WithHostDispatch the backlog is left queued; the host runs it with a last
// Dispatch from its own loop.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		cancel, started := s.cancel, s.started
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.feeds.Wait()

		s.queue.Close()
		s.consumer.Wait()
		if !s.hostPumped && !started {
			s.queue.Drain()
		}

		closeClients(s.clients)
		s.logger.Info("wrldpay stopped", nil)
	})
}

// ListenerStates reports the subscription state of every network.
func (s *Service) ListenerStates() []listener.Status {
	out := make([]listener.Status, 0, len(s.listeners))
	for _, n := range types.Networks() {
		if l, ok := s.listeners[n]; ok {
			out = append(out, l.Status())
		}
	}
	return out
}

// Reconciler exposes the matching engine, e.g. to replay events in tests or
// feed events from a custom source.
func (s *Service) Reconciler() *reconcile.Reconciler {
	return s.reconciler
}

func closeClients(cls map[types.Network]clients.Client) {
	for _, c := range cls {
		c.Close()
	}
}
