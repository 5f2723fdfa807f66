// Package main provides the CLI entry point for the scenesync relay.
//
// scenesync keeps one shared drawing document consistent across an
// interactive editor, out-of-process writers, and direct edits to the
// backing file.
//
// # Basic Usage
//
// Start the relay:
//
//	scenesync serve
//
// Read or replace the document from another process:
//
//	scenesync scene get
//	scenesync scene set -f drawing.json
//
// Ask a connected interactive session to render the scene:
//
//	scenesync export -o scene.png
//
// # Environment Variables
//
//   - SCENESYNC_FILE: backing file path (default: scene.json)
//   - SCENESYNC_ADDR: listen address (default: :3031)
//   - SCENESYNC_BASE_URL: relay URL for client commands (default: http://localhost:3031)
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "scenesync",
		Short:         "Shared-scene synchronization relay",
		Long:          "scenesync relays one shared drawing document between an interactive editor,\nCLI writers, and direct edits to its backing file, keeping every view convergent.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		buildServeCmd(),
		buildStatusCmd(),
		buildSceneCmd(),
		buildElementCmd(),
		buildExportCmd(),
		buildVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger. Debug switches the level; output goes
// to stderr so piped command output stays clean.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
