package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/scenesync/internal/relay"
	"github.com/haasonsaas/scenesync/internal/scene"
)

func dialSession(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) (relay.Message, bool) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	var msg relay.Message
	if err := conn.ReadJSON(&msg); err != nil {
		return relay.Message{}, false
	}
	return msg, true
}

func TestWebSocketSync(t *testing.T) {
	srv, rly := newTestServer(t, time.Second)

	// Seed one rectangle so fingerprints are non-trivial.
	seed := scene.DefaultDocument()
	if _, err := seed.AddElement(scene.Element{"id": "r1", "version": float64(1), "type": "rectangle"}); err != nil {
		t.Fatal(err)
	}
	if err := rly.Store().Save(seed); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	editor := dialSession(t, ts)
	viewer := dialSession(t, ts)

	// Both sessions start converged: the relay pushes the current document
	// on connect.
	initial, ok := readMessage(t, editor, 2*time.Second)
	if !ok || initial.Type != relay.KindSceneUpdate {
		t.Fatalf("editor missing initial scene-update: %+v", initial)
	}
	if len(initial.Document.Elements) != 1 {
		t.Fatalf("unexpected initial document: %+v", initial.Document)
	}
	if _, ok := readMessage(t, viewer, 2*time.Second); !ok {
		t.Fatal("viewer missing initial scene-update")
	}

	// The editor reports back exactly what it was sent: a pure echo. It must
	// be dropped before it reaches the save path.
	savedAt := rly.Store().LastSave()
	if err := editor.WriteJSON(relay.Message{Type: relay.KindSceneUpdate, Document: initial.Document}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if !rly.Store().LastSave().Equal(savedAt) {
		t.Error("echo reached the save path")
	}

	// A single version bump is a genuine edit: saved, and rebroadcast to the
	// viewer but not to the sender. The viewer's next message being the v2
	// update also proves the earlier echo was never rebroadcast.
	edited := scene.DefaultDocument()
	if _, err := edited.AddElement(scene.Element{"id": "r1", "version": float64(2), "type": "rectangle"}); err != nil {
		t.Fatal(err)
	}
	if err := editor.WriteJSON(relay.Message{Type: relay.KindSceneUpdate, Document: edited}); err != nil {
		t.Fatal(err)
	}

	msg, ok := readMessage(t, viewer, 2*time.Second)
	if !ok || msg.Type != relay.KindSceneUpdate {
		t.Fatalf("viewer missed the genuine edit: %+v", msg)
	}
	if fp := scene.FingerprintOf(msg.Document.Elements); fp != (scene.Fingerprint{Count: 1, VersionSum: 2}) {
		t.Errorf("expected fingerprint 1/2, got %s", fp)
	}

	// The edit is the new canonical state.
	doc, err := rly.Document()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Elements) != 1 || doc.Elements[0].Version() != 2 {
		t.Fatalf("canonical document not updated: %+v", doc.Elements)
	}

	// The sender must not hear its own update back. This read is last: a
	// timed-out read permanently fails the connection.
	if msg, ok := readMessage(t, editor, 500*time.Millisecond); ok {
		t.Fatalf("editor received its own update: %+v", msg)
	}
}

func TestWebSocketExportRequest(t *testing.T) {
	srv, rly := newTestServer(t, 2*time.Second)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	renderer := dialSession(t, ts)
	if _, ok := readMessage(t, renderer, 2*time.Second); !ok {
		t.Fatal("missing initial scene-update")
	}

	done := make(chan error, 1)
	go func() {
		_, err := rly.Export()
		done <- err
	}()

	msg, ok := readMessage(t, renderer, 2*time.Second)
	if !ok || msg.Type != relay.KindExportRequest {
		t.Fatalf("renderer did not receive export-request: %+v", msg)
	}
	if err := rly.Deliver([]byte("img")); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("export failed: %v", err)
	}
}

func TestWebSocketDisconnectLeavesHub(t *testing.T) {
	srv, rly := newTestServer(t, time.Second)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialSession(t, ts)
	waitUntil(t, func() bool { return rly.Hub().Len() == 1 })
	_ = conn.Close()
	waitUntil(t, func() bool { return rly.Hub().Len() == 0 })
}
