package wrldpay

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vitwit/wrldpay/logger"
	"github.com/vitwit/wrldpay/metrics"
)

type Option func(*Service)

func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Service) {
		s.metrics = r
	}
}

// WithDirectory sets how handlers resolve the live player of an identity.
func WithDirectory(d PlayerDirectory) Option {
	return func(s *Service) {
		if d != nil {
			s.directory = d
		}
	}
}

// WithHostDispatch leaves running payment handlers to the host, which calls
// Service.Dispatch from its own loop instead of a dedicated goroutine.
func WithHostDispatch() Option {
	return func(s *Service) {
		s.hostPumped = true
	}
}

// WithReconnect sets the listener reconnect strategy. See config.ReconnectConfig.
func WithReconnect(factory func() backoff.BackOff) Option {
	return func(s *Service) {
		if factory != nil {
			s.backOff = factory
		}
	}
}

func WithBufferSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithBalanceTimeout bounds each balanceOf call made by RefreshBalances.
func WithBalanceTimeout(t time.Duration) Option {
	return func(s *Service) {
		if t > 0 {
			s.balanceWait = t
		}
	}
}
