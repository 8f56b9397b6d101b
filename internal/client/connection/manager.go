// Package connection keeps a session's push channel alive: it connects,
// watches the heartbeat, reconnects with exponential backoff, de-duplicates
// events and triggers a resync on every new connection.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

const (
	defaultHeartbeatTimeout = 60 * time.Second
	defaultInitialBackoff   = 3 * time.Second
	defaultMaxBackoff       = 15 * time.Second
	defaultMultiplier       = 2
	defaultDedupSize        = 4096
)

var errHeartbeatTimeout = errors.New("no frame within heartbeat timeout")

// Handler receives everything the Manager delivers. Calls are made from the
// Manager's run goroutine, one at a time.
type Handler interface {
	HandleEvent(ctx context.Context, event domain.Event)
	Resync(ctx context.Context) error
}

// Config tunes the Manager. Zero values take the defaults.
type Config struct {
	HeartbeatTimeout time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	Multiplier       float64
	// Jitter is the backoff randomization factor, 0 for none.
	Jitter float64
	// MaxAttempts caps consecutive failed attempts that never reached
	// Connected. 0 retries forever.
	MaxAttempts int
	DedupSize   int

	OnStateChange func(from, to State)
	// OnReconnect is called before each retry with the attempt number.
	OnReconnect func(attempt int, wait time.Duration)
	OnGiveUp    func(err error)
}

func (c Config) withDefaults() Config {
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.Multiplier < 1 {
		c.Multiplier = defaultMultiplier
	}
	if c.DedupSize <= 0 {
		c.DedupSize = defaultDedupSize
	}
	return c
}

func newBackOff(cfg Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = cfg.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Manager drives one push channel for a session.
type Manager struct {
	transport ports.StreamTransport
	handler   Handler
	cfg       Config
	logger    *slog.Logger

	mu      sync.Mutex
	state   State
	err     error
	cancel  context.CancelFunc
	started bool

	done        chan struct{}
	disposeOnce sync.Once

	// Owned by the run goroutine.
	backoff       *backoff.ExponentialBackOff
	seen          *dedup
	resyncPending bool
}

// NewManager creates a Manager in the Disconnected state.
func NewManager(transport ports.StreamTransport, handler Handler, cfg Config, logger *slog.Logger) *Manager {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		transport: transport,
		handler:   handler,
		cfg:       cfg,
		logger:    logger.With("component", "connection"),
		state:     StateDisconnected,
		done:      make(chan struct{}),
		backoff:   newBackOff(cfg),
		seen:      newDedup(cfg.DedupSize),
	}
}

// Start launches the run goroutine. Calling it again, or after Dispose, does
// nothing.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		defer close(m.done)
		m.run(ctx)
	}()
}

// Dispose stops the Manager and waits for the run goroutine. Afterwards no
// handler is called and the state no longer changes.
func (m *Manager) Dispose() {
	m.disposeOnce.Do(func() {
		m.mu.Lock()
		started := m.started
		m.started = true
		cancel := m.cancel
		m.mu.Unlock()

		if !started {
			close(m.done)
			return
		}
		cancel()
		<-m.done
	})
}

// Done is closed when the Manager stopped, after Dispose or giving up.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Err returns the give-up error, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(to State) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()

	if from == to {
		return
	}
	m.logger.Debug("connection state changed", "from", from.String(), "to", to.String())
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(from, to)
	}
}

func (m *Manager) run(ctx context.Context) {
	attempts := 0
	for {
		m.setState(StateConnecting)

		connected, err := m.connectOnce(ctx)
		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return
		}
		if connected {
			attempts = 0
		}
		attempts++

		if !errors.Is(err, errHeartbeatTimeout) {
			m.setState(StateError)
		}
		m.logger.Warn("push channel lost", "error", err, "attempt", attempts)

		if m.cfg.MaxAttempts > 0 && attempts >= m.cfg.MaxAttempts {
			m.giveUp(fmt.Errorf("%w: gave up after %d attempts: %v", apperrors.ErrConnectionLost, attempts, err))
			return
		}

		wait := m.backoff.NextBackOff()
		if m.cfg.OnReconnect != nil {
			m.cfg.OnReconnect(attempts, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.setState(StateDisconnected)
			return
		case <-timer.C:
		}
	}
}

func (m *Manager) giveUp(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()

	m.setState(StateError)
	m.logger.Error("giving up on push channel", "error", err)
	if m.cfg.OnGiveUp != nil {
		m.cfg.OnGiveUp(err)
	}
}

type readResult struct {
	frame domain.Frame
	err   error
}

// connectOnce opens the stream and consumes it until it fails. It reports
// whether the connection ever reached Connected.
func (m *Manager) connectOnce(ctx context.Context) (bool, error) {
	stream, err := m.open(ctx)
	if err != nil {
		return false, err
	}

	frames := make(chan readResult)
	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			f, err := stream.Next()
			select {
			case frames <- readResult{frame: f, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	defer func() {
		close(stop)
		_ = stream.Close()
		<-readerDone
	}()

	watchdog := time.NewTimer(m.cfg.HeartbeatTimeout)
	defer watchdog.Stop()

	connected := false
	for {
		select {
		case <-ctx.Done():
			return connected, ctx.Err()

		case <-watchdog.C:
			m.setState(StateStale)
			return connected, errHeartbeatTimeout

		case r := <-frames:
			if r.err != nil {
				return connected, fmt.Errorf("%w: %v", apperrors.ErrConnectionLost, r.err)
			}
			resetTimer(watchdog, m.cfg.HeartbeatTimeout)

			first := !connected
			if first {
				connected = true
				m.backoff.Reset()
				m.setState(StateConnected)
				m.resync(ctx)
			}
			m.handleFrame(ctx, r.frame, first)
		}
	}
}

// open dials the transport. The stream lives on a context that ends with
// ctx, but Open itself must return within the heartbeat timeout; a server
// that accepts and then stays silent counts as stale.
func (m *Manager) open(ctx context.Context) (ports.FrameStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	var timedOut atomic.Bool
	deadline := time.AfterFunc(m.cfg.HeartbeatTimeout, func() {
		timedOut.Store(true)
		cancel()
	})

	stream, err := m.transport.Open(streamCtx)
	deadline.Stop()
	if timedOut.Load() {
		if stream != nil {
			_ = stream.Close()
		}
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.setState(StateStale)
		return nil, errHeartbeatTimeout
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConnectionLost, err)
	}
	return &cancelStream{FrameStream: stream, cancel: cancel}, nil
}

// cancelStream releases the dial context once the stream is closed.
type cancelStream struct {
	ports.FrameStream
	cancel context.CancelFunc
}

func (s *cancelStream) Close() error {
	err := s.FrameStream.Close()
	s.cancel()
	return err
}

func (m *Manager) handleFrame(ctx context.Context, f domain.Frame, first bool) {
	if ctx.Err() != nil {
		return
	}

	switch f.Name {
	case domain.FrameConnected:
		m.logger.Debug("push channel greeted")
		return
	case domain.FramePing:
		if m.resyncPending {
			m.resync(ctx)
		}
		return
	case domain.FrameResyncRequired:
		if !first {
			m.resync(ctx)
		}
		return
	}

	event, err := domain.ParseFrame(f)
	if err != nil {
		m.logger.Warn("dropping undecodable frame", "event", f.Name, "id", f.ID, "error", err)
		return
	}
	if m.seen.seen(event.Key()) {
		m.logger.Debug("skipping duplicate event", "event_id", event.ID, "kind", event.Kind())
		return
	}
	m.handler.HandleEvent(ctx, event)
}

// resync asks the handler to refetch. A failure is retried on the next
// heartbeat.
func (m *Manager) resync(ctx context.Context) {
	if err := m.handler.Resync(ctx); err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("resync failed, retrying on next heartbeat", "error", err)
		}
		m.resyncPending = true
		return
	}
	m.resyncPending = false
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
