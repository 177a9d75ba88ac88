package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// inboundBuffer is the capacity of the merged inbound stream.
const inboundBuffer = 256

// Manager merges the inbound streams of the registered channels and routes
// replies back by channel name. Channels are visited in registration order.
type Manager struct {
	logger *slog.Logger

	mu     sync.RWMutex
	order  []string
	byName map[string]Channel

	out      chan *IncomingMessage
	cancel   context.CancelFunc
	pumps    sync.WaitGroup
	stopOnce sync.Once
}

// NewManager creates a channel manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger.With("component", "channels"),
		byName: make(map[string]Channel),
		out:    make(chan *IncomingMessage, inboundBuffer),
		cancel: func() {},
	}
}

// Register adds a channel. Must be called before Start.
func (m *Manager) Register(ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := ch.Name()
	if _, dup := m.byName[name]; dup {
		return fmt.Errorf("channel %q already registered", name)
	}
	m.byName[name] = ch
	m.order = append(m.order, name)
	return nil
}

// Start connects the registered channels and begins forwarding their
// events. A channel that fails to connect is logged and left out; Start
// fails only when none connects.
func (m *Manager) Start(ctx context.Context) error {
	list := m.list()
	if len(list) == 0 {
		return errors.New("no channels registered")
	}

	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	var failures []error
	for _, ch := range list {
		if err := ch.Connect(ctx); err != nil {
			m.logger.Error("channel failed to connect", "channel", ch.Name(), "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		m.logger.Info("channel connected", "channel", ch.Name())

		m.pumps.Add(1)
		go m.pump(ctx, ch)
	}

	if len(failures) == len(list) {
		return fmt.Errorf("no channel connected: %w", errors.Join(failures...))
	}
	return nil
}

// Stop ends forwarding, disconnects every channel and closes the stream.
// Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.RLock()
		cancel := m.cancel
		m.mu.RUnlock()
		cancel()
		m.pumps.Wait()

		for _, ch := range m.list() {
			if err := ch.Disconnect(); err != nil {
				m.logger.Warn("channel failed to disconnect", "channel", ch.Name(), "error", err)
			}
		}
		close(m.out)
		m.logger.Info("channels stopped")
	})
}

// Messages returns the merged inbound stream. It is closed by Stop.
func (m *Manager) Messages() <-chan *IncomingMessage { return m.out }

// Send delivers msg to chatID through the named channel.
func (m *Manager) Send(ctx context.Context, channel, chatID string, msg *OutgoingMessage) error {
	ch, ok := m.Channel(channel)
	if !ok {
		return fmt.Errorf("unknown channel %q", channel)
	}
	if !ch.IsConnected() {
		return fmt.Errorf("channel %q: %w", channel, ErrChannelDisconnected)
	}
	return ch.Send(ctx, chatID, msg)
}

// Channel returns a registered channel by name.
func (m *Manager) Channel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.byName[name]
	return ch, ok
}

// Each calls fn for every registered channel.
func (m *Manager) Each(fn func(Channel)) {
	for _, ch := range m.list() {
		fn(ch)
	}
}

// HealthAll reports the health of every registered channel by name.
func (m *Manager) HealthAll() map[string]HealthStatus {
	list := m.list()
	out := make(map[string]HealthStatus, len(list))
	for _, ch := range list {
		out[ch.Name()] = ch.Health()
	}
	return out
}

func (m *Manager) list() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]Channel, 0, len(m.order))
	for _, name := range m.order {
		list = append(list, m.byName[name])
	}
	return list
}

// pump copies one channel's events into the merged stream until the
// channel closes its stream or ctx ends.
func (m *Manager) pump(ctx context.Context, ch Channel) {
	defer m.pumps.Done()
	in := ch.Receive()
	for {
		var msg *IncomingMessage
		select {
		case <-ctx.Done():
			return
		case v, ok := <-in:
			if !ok {
				return
			}
			msg = v
		}

		select {
		case m.out <- msg:
		case <-ctx.Done():
			return
		}
	}
}
