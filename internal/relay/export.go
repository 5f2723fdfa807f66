package relay

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrExportBusy      = errors.New("relay: export already in flight")
	ErrExportTimeout   = errors.New("relay: export timed out")
	ErrNoPendingExport = errors.New("relay: no export pending")
)

// DefaultExportTimeout is the window a renderer has to fulfill an export.
const DefaultExportTimeout = 10 * time.Second

type pendingExport struct {
	result chan []byte
	timer  *time.Timer
}

// Exporter bridges one synchronous "produce an image" call to one
// asynchronous fulfillment. It holds a single pending-request slot: a second
// request while one is outstanding is rejected immediately, and exactly one
// of {Fulfill, timeout} resolves the blocked caller.
type Exporter struct {
	timeout time.Duration

	mu      sync.Mutex
	pending *pendingExport
}

// NewExporter creates an exporter with the given fulfillment timeout.
func NewExporter(timeout time.Duration) *Exporter {
	if timeout <= 0 {
		timeout = DefaultExportTimeout
	}
	return &Exporter{timeout: timeout}
}

// Busy reports whether a request is currently outstanding.
func (e *Exporter) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != nil
}

// Request claims the pending slot, runs announce (the broadcast that asks a
// renderer to respond), and blocks until Fulfill delivers bytes or the
// timeout fires. Returns ErrExportBusy without touching the outstanding
// request when the slot is occupied.
func (e *Exporter) Request(announce func()) ([]byte, error) {
	e.mu.Lock()
	if e.pending != nil {
		e.mu.Unlock()
		return nil, ErrExportBusy
	}
	p := &pendingExport{result: make(chan []byte, 1)}
	p.timer = time.AfterFunc(e.timeout, func() { e.expire(p) })
	e.pending = p
	e.mu.Unlock()

	if announce != nil {
		announce()
	}

	data, ok := <-p.result
	if !ok {
		return nil, ErrExportTimeout
	}
	return data, nil
}

// Fulfill resolves the outstanding request with the rendered bytes. A late
// or spurious result — no request pending, or the timeout already fired —
// returns ErrNoPendingExport and affects nothing.
func (e *Exporter) Fulfill(data []byte) error {
	e.mu.Lock()
	p := e.pending
	if p == nil {
		e.mu.Unlock()
		return ErrNoPendingExport
	}
	e.pending = nil
	e.mu.Unlock()

	p.timer.Stop()
	p.result <- data
	return nil
}

// expire resolves the caller with a timeout, unless Fulfill detached the
// request first. Both paths detach under the mutex, so only one resolves.
func (e *Exporter) expire(p *pendingExport) {
	e.mu.Lock()
	if e.pending != p {
		e.mu.Unlock()
		return
	}
	e.pending = nil
	e.mu.Unlock()
	close(p.result)
}
