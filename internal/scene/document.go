// Package scene holds the canonical shared drawing document, its on-disk
// representation, and the fingerprint used for echo suppression.
package scene

import (
	"errors"

	"github.com/google/uuid"
)

const (
	// DocumentKind is the schema discriminator every backing file must carry.
	DocumentKind = "excalidraw"
	// DocumentSchemaVersion is the only schema version the relay understands.
	// Files with any other version are replaced with a default document; there
	// is no migration logic.
	DocumentSchemaVersion = 2

	documentSource = "scenesync"
)

var (
	ErrElementNotFound = errors.New("scene: element not found")
	ErrElementExists   = errors.New("scene: element already exists")
	ErrSchemaMismatch  = errors.New("scene: unsupported document schema")
)

// Element is a single drawing element. The relay treats elements as opaque
// payloads owned by the drawing library on the client side: it only ever
// reads the three fields needed for fingerprinting and addressing (id,
// version, isDeleted). Keeping the raw map form means every other field
// survives load/save round-trips untouched.
type Element map[string]any

// ID returns the element's stable identifier, or "" when absent.
func (e Element) ID() string {
	id, _ := e["id"].(string)
	return id
}

// Version returns the element's per-id version counter. Missing or
// non-numeric versions count as 0. JSON numbers decode as float64.
func (e Element) Version() int64 {
	switch v := e["version"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// Deleted reports the soft-delete flag. Deleted elements stay in storage but
// are excluded from fingerprinting and active views.
func (e Element) Deleted() bool {
	deleted, _ := e["isDeleted"].(bool)
	return deleted
}

// Document is the canonical shared scene. The relay passes viewState and
// attachments through unmodified; element contents beyond the fingerprint
// fields are equally opaque to it.
type Document struct {
	Kind          string         `json:"type"`
	SchemaVersion int            `json:"version"`
	Source        string         `json:"source,omitempty"`
	Elements      []Element      `json:"elements"`
	ViewState     map[string]any `json:"appState"`
	Attachments   map[string]any `json:"files"`
}

// DefaultDocument returns the empty document written when the backing file
// is absent, corrupt, or schema-mismatched.
func DefaultDocument() *Document {
	return &Document{
		Kind:          DocumentKind,
		SchemaVersion: DocumentSchemaVersion,
		Source:        documentSource,
		Elements:      []Element{},
		ViewState:     map[string]any{"viewBackgroundColor": "#ffffff"},
		Attachments:   map[string]any{},
	}
}

// Valid reports whether the document matches the schema the relay understands.
func (d *Document) Valid() bool {
	return d != nil && d.Kind == DocumentKind && d.SchemaVersion == DocumentSchemaVersion
}

// Normalize fills schema fields and nil collections so a partially-specified
// document submitted by a writer serializes as a complete backing file.
func (d *Document) Normalize() {
	if d == nil {
		return
	}
	if d.Kind == "" {
		d.Kind = DocumentKind
	}
	if d.SchemaVersion == 0 {
		d.SchemaVersion = DocumentSchemaVersion
	}
	if d.Elements == nil {
		d.Elements = []Element{}
	}
	if d.ViewState == nil {
		d.ViewState = map[string]any{}
	}
	if d.Attachments == nil {
		d.Attachments = map[string]any{}
	}
}

// ActiveElements returns the elements with the soft-delete flag unset.
func (d *Document) ActiveElements() []Element {
	active := make([]Element, 0, len(d.Elements))
	for _, el := range d.Elements {
		if !el.Deleted() {
			active = append(active, el)
		}
	}
	return active
}

func (d *Document) find(id string) int {
	for i, el := range d.Elements {
		if el.ID() == id {
			return i
		}
	}
	return -1
}

// AddElement appends a new element, assigning an id when the caller did not
// provide one and starting the version counter at 1.
func (d *Document) AddElement(el Element) (Element, error) {
	if el == nil {
		el = Element{}
	}
	id := el.ID()
	if id == "" {
		id = uuid.NewString()
		el["id"] = id
	} else if d.find(id) >= 0 {
		return nil, ErrElementExists
	}
	if el.Version() == 0 {
		el["version"] = int64(1)
	}
	if _, ok := el["isDeleted"]; !ok {
		el["isDeleted"] = false
	}
	d.Elements = append(d.Elements, el)
	return el, nil
}

// ApplyUpdate merges patch fields into the element with the given id and
// bumps its version. The id field itself is never overwritten.
func (d *Document) ApplyUpdate(id string, patch Element) (Element, error) {
	i := d.find(id)
	if i < 0 {
		return nil, ErrElementNotFound
	}
	el := d.Elements[i]
	for k, v := range patch {
		if k == "id" || k == "version" {
			continue
		}
		el[k] = v
	}
	el["version"] = el.Version() + 1
	return el, nil
}

// RemoveElement soft-deletes the element with the given id. The element
// remains in storage with isDeleted set and a bumped version.
func (d *Document) RemoveElement(id string) error {
	i := d.find(id)
	if i < 0 {
		return ErrElementNotFound
	}
	el := d.Elements[i]
	el["isDeleted"] = true
	el["version"] = el.Version() + 1
	return nil
}
