package relay

import (
	"sync"
	"testing"
)

// fakeSession records deliveries; full simulates a session whose outbound
// buffer cannot accept messages.
type fakeSession struct {
	id   string
	full bool

	mu   sync.Mutex
	msgs []Message
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Send(msg Message) bool {
	if f.full {
		return false
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	return true
}

func (f *fakeSession) reset() {
	f.mu.Lock()
	f.msgs = nil
	f.mu.Unlock()
}

func (f *fakeSession) received() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func TestHubPublish(t *testing.T) {
	t.Run("delivers to all sessions", func(t *testing.T) {
		hub := NewHub(nil, nil)
		a := &fakeSession{id: "a"}
		b := &fakeSession{id: "b"}
		hub.Register(a)
		hub.Register(b)

		hub.Publish(Message{Type: KindSceneUpdate}, nil)

		if len(a.received()) != 1 || len(b.received()) != 1 {
			t.Errorf("expected one delivery each, got %d/%d", len(a.received()), len(b.received()))
		}
	})

	t.Run("excludes the originating session", func(t *testing.T) {
		hub := NewHub(nil, nil)
		sender := &fakeSession{id: "sender"}
		other := &fakeSession{id: "other"}
		hub.Register(sender)
		hub.Register(other)

		hub.Publish(Message{Type: KindSceneUpdate}, sender)

		if len(sender.received()) != 0 {
			t.Error("excluded session must not receive the message")
		}
		if len(other.received()) != 1 {
			t.Error("other sessions must still receive the message")
		}
	})

	t.Run("skips unwritable sessions without failing", func(t *testing.T) {
		hub := NewHub(nil, nil)
		stuck := &fakeSession{id: "stuck", full: true}
		ok := &fakeSession{id: "ok"}
		hub.Register(stuck)
		hub.Register(ok)

		hub.Publish(Message{Type: KindExportRequest}, nil)

		if len(ok.received()) != 1 {
			t.Error("healthy session must receive despite a stuck peer")
		}
	})

	t.Run("unregistered session receives nothing", func(t *testing.T) {
		hub := NewHub(nil, nil)
		s := &fakeSession{id: "s"}
		hub.Register(s)
		hub.Unregister(s)

		hub.Publish(Message{Type: KindSceneUpdate}, nil)

		if len(s.received()) != 0 {
			t.Error("unregistered session must not receive broadcasts")
		}
		if hub.Len() != 0 {
			t.Errorf("expected empty hub, got %d", hub.Len())
		}
	})
}
