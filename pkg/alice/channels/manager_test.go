package channels

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fakeChannel is an in-memory transport for manager tests.
type fakeChannel struct {
	name      string
	messages  chan *IncomingMessage
	connected atomic.Bool

	connectErr error
	sent       []*OutgoingMessage
	sentTo     []string
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{
		name:     name,
		messages: make(chan *IncomingMessage, 8),
	}
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Connect(context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected.Store(true)
	return nil
}

func (f *fakeChannel) Disconnect() error {
	f.connected.Store(false)
	return nil
}

func (f *fakeChannel) Send(_ context.Context, to string, msg *OutgoingMessage) error {
	f.sentTo = append(f.sentTo, to)
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) Receive() <-chan *IncomingMessage { return f.messages }
func (f *fakeChannel) IsConnected() bool                { return f.connected.Load() }
func (f *fakeChannel) Health() HealthStatus {
	return HealthStatus{Connected: f.connected.Load()}
}

func TestRegisterDuplicate(t *testing.T) {
	m := NewManager(nil)

	if err := m.Register(newFakeChannel("telegram")); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(newFakeChannel("telegram")); err == nil {
		t.Error("duplicate registration must fail")
	}
}

func TestStartForwardsMessages(t *testing.T) {
	m := NewManager(nil)
	fc := newFakeChannel("telegram")
	if err := m.Register(fc); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}

	want := &IncomingMessage{ID: "1", Channel: "telegram", Content: "hi"}
	fc.messages <- want

	select {
	case got := <-m.Messages():
		if got != want {
			t.Errorf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not forwarded")
	}

	m.Stop()
}

func TestStartNoChannelConnects(t *testing.T) {
	m := NewManager(nil)
	fc := newFakeChannel("telegram")
	fc.connectErr = errors.New("bad token")
	if err := m.Register(fc); err != nil {
		t.Fatal(err)
	}

	if err := m.Start(context.Background()); err == nil {
		t.Error("expected error when nothing connects")
	}
}

func TestStartPartialFailure(t *testing.T) {
	m := NewManager(nil)
	bad := newFakeChannel("discord")
	bad.connectErr = errors.New("bad token")
	good := newFakeChannel("telegram")
	for _, ch := range []Channel{bad, good} {
		if err := m.Register(ch); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Errorf("one healthy channel should be enough: %v", err)
	}
	m.Stop()
}

func TestSend(t *testing.T) {
	m := NewManager(nil)
	fc := newFakeChannel("telegram")
	if err := m.Register(fc); err != nil {
		t.Fatal(err)
	}

	// Not connected yet.
	err := m.Send(context.Background(), "telegram", "123", &OutgoingMessage{Content: "hi"})
	if !errors.Is(err, ErrChannelDisconnected) {
		t.Errorf("err = %v, want disconnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	if err := m.Send(ctx, "telegram", "123", &OutgoingMessage{Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if len(fc.sent) != 1 || fc.sentTo[0] != "123" {
		t.Errorf("sent = %v to %v", fc.sent, fc.sentTo)
	}

	if err := m.Send(ctx, "matrix", "123", &OutgoingMessage{}); err == nil {
		t.Error("unknown channel must error")
	}
}

func TestStopDisconnectsAndCloses(t *testing.T) {
	m := NewManager(nil)
	fc := newFakeChannel("telegram")
	if err := m.Register(fc); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; listener still blocked")
	}

	if fc.IsConnected() {
		t.Error("channel still connected after Stop")
	}
	if _, ok := <-m.Messages(); ok {
		t.Error("messages stream not closed")
	}
}

func TestHealthAll(t *testing.T) {
	m := NewManager(nil)
	if err := m.Register(newFakeChannel("telegram")); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(newFakeChannel("discord")); err != nil {
		t.Fatal(err)
	}

	statuses := m.HealthAll()
	if len(statuses) != 2 {
		t.Fatalf("statuses = %v", statuses)
	}
	if statuses["telegram"].Connected {
		t.Error("unconnected channel reported healthy")
	}
}
