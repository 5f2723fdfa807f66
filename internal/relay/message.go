// Package relay coordinates the canonical document between concurrent
// writers: live sessions on the push channel, out-of-process callers on the
// request surface, and the file watcher. It owns the broadcast hub and the
// single-slot export handshake.
package relay

import "github.com/haasonsaas/scenesync/internal/scene"

// Message kinds exchanged on the push channel.
const (
	// KindSceneUpdate carries the full document. Relay to session it means
	// "canonical state changed, apply wholesale"; session to relay it means
	// "my local edit, save and rebroadcast to everyone else".
	KindSceneUpdate = "scene-update"
	// KindExportRequest asks an interactive session to render the current
	// scene and deliver the image back over the request surface.
	KindExportRequest = "export-request"
)

// Message is the JSON envelope for the push channel.
type Message struct {
	Type     string          `json:"type"`
	Document *scene.Document `json:"document,omitempty"`
}
