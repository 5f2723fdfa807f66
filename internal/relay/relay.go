package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/scenesync/internal/scene"
)

// Relay holds the canonical document and arbitrates between its writers.
// All mutable relay state — the broadcast set, the pending-export slot, the
// store's last-save timestamp — lives on this one instance, so tests can
// run several isolated relays in the same process.
type Relay struct {
	store    *scene.Store
	hub      *Hub
	exporter *Exporter
	logger   *slog.Logger
	metrics  *Metrics
}

// Options configures a relay.
type Options struct {
	// ExportTimeout bounds the wait for a renderer; zero means the default.
	ExportTimeout time.Duration
	Logger        *slog.Logger
	Metrics       *Metrics
}

// New creates a relay around the given store.
func New(store *scene.Store, opts Options) (*Relay, error) {
	if store == nil {
		return nil, fmt.Errorf("relay: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "relay")
	return &Relay{
		store:    store,
		hub:      NewHub(logger, opts.Metrics),
		exporter: NewExporter(opts.ExportTimeout),
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Store returns the document store.
func (r *Relay) Store() *scene.Store {
	return r.store
}

// Hub returns the broadcast hub.
func (r *Relay) Hub() *Hub {
	return r.hub
}

// Document returns the current canonical document.
func (r *Relay) Document() (*scene.Document, error) {
	return r.store.Load()
}

// Replace saves a whole new document and broadcasts it to every session.
// Used by out-of-process writers, which are not live sessions themselves.
func (r *Relay) Replace(doc *scene.Document) error {
	return r.apply(doc, nil)
}

// SubmitUpdate saves a full document reported by a live session and
// rebroadcasts it to every other session, excluding the sender.
func (r *Relay) SubmitUpdate(from Session, doc *scene.Document) error {
	return r.apply(doc, from)
}

func (r *Relay) apply(doc *scene.Document, from Session) error {
	if doc == nil {
		return fmt.Errorf("relay: document is required")
	}
	doc.Normalize()
	// A document carrying a schema the relay does not understand must be
	// rejected here, before it reaches the file: accepting it would let the
	// next load classify the file as mismatched and self-heal, silently
	// destroying the acknowledged write.
	if !doc.Valid() {
		return scene.ErrSchemaMismatch
	}
	if err := r.store.Save(doc); err != nil {
		return err
	}
	r.metrics.RecordUpdate()
	r.hub.Publish(Message{Type: KindSceneUpdate, Document: doc}, from)
	return nil
}

// CreateElement appends one element to the canonical document and
// broadcasts the result.
func (r *Relay) CreateElement(el scene.Element) (scene.Element, error) {
	doc, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	created, err := doc.AddElement(el)
	if err != nil {
		return nil, err
	}
	if err := r.apply(doc, nil); err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateElement merges patch fields into the element with the given id,
// bumps its version, and broadcasts the result. Unknown ids leave the
// canonical state untouched.
func (r *Relay) UpdateElement(id string, patch scene.Element) (scene.Element, error) {
	doc, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	updated, err := doc.ApplyUpdate(id, patch)
	if err != nil {
		return nil, err
	}
	if err := r.apply(doc, nil); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteElement soft-deletes the element with the given id and broadcasts
// the result.
func (r *Relay) DeleteElement(id string) error {
	doc, err := r.store.Load()
	if err != nil {
		return err
	}
	if err := doc.RemoveElement(id); err != nil {
		return err
	}
	return r.apply(doc, nil)
}

// Export broadcasts an export-request to every session and blocks until a
// renderer delivers bytes or the timeout fires. Returns ErrExportBusy when
// a request is already outstanding.
func (r *Relay) Export() ([]byte, error) {
	data, err := r.exporter.Request(func() {
		r.metrics.RecordExportRequested()
		r.hub.Publish(Message{Type: KindExportRequest}, nil)
	})
	switch {
	case err == nil:
		r.metrics.RecordExportFulfilled()
		r.logger.Info("export fulfilled", "bytes", len(data))
	case errors.Is(err, ErrExportTimeout):
		r.metrics.RecordExportTimedOut()
		r.logger.Warn("export timed out")
	}
	return data, err
}

// Deliver hands rendered bytes to the outstanding export request.
func (r *Relay) Deliver(data []byte) error {
	return r.exporter.Fulfill(data)
}

// ExportBusy reports whether an export request is outstanding.
func (r *Relay) ExportBusy() bool {
	return r.exporter.Busy()
}

// HandleExternalChange reloads the document after a genuine external edit to
// the backing file and broadcasts it to every session — no exclusion, every
// live session must converge to the externally-written state.
func (r *Relay) HandleExternalChange() {
	doc, err := r.store.Load()
	if err != nil {
		r.logger.Error("reload after external change failed", "error", err)
		return
	}
	r.metrics.RecordExternalReload()
	r.logger.Info("external change detected, rebroadcasting",
		"elements", len(doc.Elements))
	r.hub.Publish(Message{Type: KindSceneUpdate, Document: doc}, nil)
}
