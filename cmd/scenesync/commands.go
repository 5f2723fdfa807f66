package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/scenesync/internal/config"
	"github.com/haasonsaas/scenesync/internal/relay"
	"github.com/haasonsaas/scenesync/internal/scene"
	"github.com/haasonsaas/scenesync/internal/server"
	"github.com/haasonsaas/scenesync/internal/watch"
)

// =============================================================================
// Serve Command
// =============================================================================

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		Long: `Start the relay server.

The server will:
1. Load (or self-heal) the backing scene file
2. Start watching the file for external edits
3. Serve the HTTP API and the WebSocket push channel

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with defaults
  scenesync serve

  # Start with a config file
  scenesync serve --config scenesync.yaml

  # Start with debug logging
  scenesync serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file (optional)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Debug = true
	}
	logger := newLogger(cfg.Debug)
	slog.SetDefault(logger)

	store, err := scene.NewStore(cfg.File, logger)
	if err != nil {
		return err
	}
	// Self-heal a missing or unusable backing file before anything connects.
	if _, err := store.Load(); err != nil {
		return err
	}

	rly, err := relay.New(store, relay.Options{
		ExportTimeout: cfg.ExportTimeout,
		Logger:        logger,
		Metrics:       relay.NewMetrics(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge, err := watch.NewBridge(cfg.File, cfg.QuietWindow, store.LastSave, rly.HandleExternalChange, logger)
	if err != nil {
		return err
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("start file watch: %w", err)
	}
	defer func() { _ = bridge.Close() }()

	srv := server.New(rly, server.Config{
		Addr:      cfg.Addr,
		StaticDir: cfg.StaticDir,
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("scenesync relay started",
		"addr", cfg.Addr, "file", cfg.File, "version", version)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// =============================================================================
// Client Commands (the out-of-process writer)
// =============================================================================

func buildStatusCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check relay health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(baseURL)
			health, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Status:     %s\n", health.Status)
			fmt.Printf("Scene file: %s\n", health.SceneFile)
			fmt.Printf("Sessions:   %d\n", health.Sessions)
			return nil
		},
	}
	addBaseURLFlag(cmd, &baseURL)
	return cmd
}

func buildSceneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scene",
		Short: "Read or replace the shared document",
	}
	cmd.AddCommand(buildSceneGetCmd(), buildSceneSetCmd())
	return cmd
}

func buildSceneGetCmd() *cobra.Command {
	var (
		baseURL string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the current document",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(baseURL)
			doc, err := client.Scene(cmd.Context())
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')
			if output != "" {
				return os.WriteFile(output, data, 0o644)
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the document to a file instead of stdout")
	addBaseURLFlag(cmd, &baseURL)
	return cmd
}

func buildSceneSetCmd() *cobra.Command {
	var (
		baseURL string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the document from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var doc scene.Document
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			client := newAPIClient(baseURL)
			if err := client.ReplaceScene(cmd.Context(), &doc); err != nil {
				return err
			}
			fmt.Printf("Replaced document with %d elements\n", len(doc.Elements))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file holding the new document (required)")
	_ = cmd.MarkFlagRequired("file")
	addBaseURLFlag(cmd, &baseURL)
	return cmd
}

func buildElementCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "element",
		Short: "Create, update, or delete single elements",
	}
	cmd.AddCommand(buildElementAddCmd(), buildElementUpdateCmd(), buildElementDeleteCmd())
	return cmd
}

func buildElementAddCmd() *cobra.Command {
	var (
		baseURL string
		payload string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add one element from an inline JSON payload",
		Example: `  scenesync element add --json '{"type":"rectangle","x":10,"y":10,"width":80,"height":40}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var el scene.Element
			if err := json.Unmarshal([]byte(payload), &el); err != nil {
				return fmt.Errorf("parse element: %w", err)
			}
			client := newAPIClient(baseURL)
			created, err := client.CreateElement(cmd.Context(), el)
			if err != nil {
				return err
			}
			fmt.Printf("Created element %s (version %d)\n", created.ID(), created.Version())
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "json", "", "Element as a JSON object (required)")
	_ = cmd.MarkFlagRequired("json")
	addBaseURLFlag(cmd, &baseURL)
	return cmd
}

func buildElementUpdateCmd() *cobra.Command {
	var (
		baseURL string
		payload string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Merge JSON fields into an existing element",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch scene.Element
			if err := json.Unmarshal([]byte(payload), &patch); err != nil {
				return fmt.Errorf("parse patch: %w", err)
			}
			client := newAPIClient(baseURL)
			updated, err := client.UpdateElement(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			fmt.Printf("Updated element %s (version %d)\n", updated.ID(), updated.Version())
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "json", "", "Fields to merge, as a JSON object (required)")
	_ = cmd.MarkFlagRequired("json")
	addBaseURLFlag(cmd, &baseURL)
	return cmd
}

func buildElementDeleteCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete an element",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(baseURL)
			if err := client.DeleteElement(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted element %s\n", args[0])
			return nil
		},
	}
	addBaseURLFlag(cmd, &baseURL)
	return cmd
}

func buildExportCmd() *cobra.Command {
	var (
		baseURL string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Ask a connected interactive session to render the scene",
		Long: `Ask a connected interactive session to render the scene as a PNG.

The relay forwards the request to the interactive client and blocks until it
delivers the image or the export window (10s by default) expires. Only one
export may be in flight at a time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(baseURL)
			data, err := client.Export(cmd.Context())
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %d bytes to %s\n", len(data), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "scene.png", "Output PNG path")
	addBaseURLFlag(cmd, &baseURL)
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("scenesync %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func addBaseURLFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "url", "", "Relay base URL (default: $SCENESYNC_BASE_URL or "+config.DefaultBaseURL+")")
}
