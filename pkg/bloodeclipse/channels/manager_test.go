package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubChannel struct {
	name       string
	connectErr error
	in         chan *IncomingMessage

	mu        sync.Mutex
	connected bool
	sent      []*OutgoingMessage
}

func newStub(name string) *stubChannel {
	return &stubChannel{name: name, in: make(chan *IncomingMessage, 4)}
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Connect(context.Context) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *stubChannel) Disconnect() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *stubChannel) Send(_ context.Context, _ string, msg *OutgoingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubChannel) Receive() <-chan *IncomingMessage { return s.in }

func (s *stubChannel) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *stubChannel) Health() HealthStatus { return HealthStatus{Connected: s.IsConnected()} }

func TestManager_RegisterDuplicate(t *testing.T) {
	m := NewManager(nil)
	if err := m.Register(newStub("discord")); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(newStub("discord")); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestManager_StartRequiresChannels(t *testing.T) {
	if err := NewManager(nil).Start(context.Background()); err == nil {
		t.Fatal("expected error with no channels")
	}

	m := NewManager(nil)
	bad := newStub("discord")
	bad.connectErr = errors.New("invalid token")
	_ = m.Register(bad)
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected error when no channel connects")
	}
}

func TestManager_ForwardsAndSends(t *testing.T) {
	m := NewManager(nil)
	ok := newStub("discord")
	down := newStub("console")
	down.connectErr = errors.New("no tty")
	_ = m.Register(ok)
	_ = m.Register(down)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ok.in <- &IncomingMessage{ID: "m-1", Channel: "discord"}
	select {
	case msg := <-m.Messages():
		if msg.ID != "m-1" {
			t.Errorf("got %q", msg.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not forwarded")
	}

	if err := m.Send(context.Background(), "discord", "c", &OutgoingMessage{Content: "hi"}); err != nil {
		t.Errorf("Send: %v", err)
	}
	if err := m.Send(context.Background(), "console", "c", &OutgoingMessage{}); !errors.Is(err, ErrChannelDisconnected) {
		t.Errorf("send to disconnected channel: err = %v", err)
	}
	if err := m.Send(context.Background(), "slack", "c", &OutgoingMessage{}); err == nil {
		t.Error("expected error for unknown channel")
	}

	health := m.HealthAll()
	if !health["discord"].Connected || health["console"].Connected {
		t.Errorf("health = %+v", health)
	}

	var names []string
	m.Each(func(ch Channel) { names = append(names, ch.Name()) })
	if len(names) != 2 || names[0] != "discord" || names[1] != "console" {
		t.Errorf("Each visited %v, want registration order", names)
	}

	m.Stop()
	m.Stop()
	if ok.IsConnected() {
		t.Error("Stop should disconnect channels")
	}
	if _, open := <-m.Messages(); open {
		t.Error("stream should be closed after Stop")
	}
}
