package relay

import (
	"sync"

	"github.com/haasonsaas/scenesync/internal/scene"
)

// EchoGuard prevents a full-document update the relay just pushed to one
// session from being reflected straight back as if it were a fresh edit.
// One guard lives on each session's inbound path: Record is called with the
// fingerprint of every scene-update queued to the session, and an inbound
// report whose fingerprint matches the most recent recording is a pure echo
// and is dropped before it reaches the save path.
//
// Advisory, not authoritative: a distinct edit that collides with the
// last-sent fingerprint is also suppressed. That only delays convergence —
// the next differing edit flushes through.
type EchoGuard struct {
	mu  sync.Mutex
	set bool
	fp  scene.Fingerprint
}

// Record notes the fingerprint of a payload just sent to the session.
func (g *EchoGuard) Record(fp scene.Fingerprint) {
	g.mu.Lock()
	g.set = true
	g.fp = fp
	g.mu.Unlock()
}

// IsEcho reports whether fp matches the most recently recorded fingerprint.
func (g *EchoGuard) IsEcho(fp scene.Fingerprint) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.set && g.fp == fp
}
