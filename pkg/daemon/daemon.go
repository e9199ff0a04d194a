// Package daemon implements the long-lived sync worker the Obsidian plugin
// spawns. It speaks line-framed JSON on stdin/stdout; everything diagnostic
// goes to the logger so stdout stays machine-readable.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/soundprediction/megamem/pkg/config"
	"github.com/soundprediction/megamem/pkg/embedder"
	"github.com/soundprediction/megamem/pkg/ingest"
)

// SyncFunc runs the ingestion pipeline for exactly one note. embed is the
// daemon's warmed-up local embedder, or nil when warm-up was skipped.
type SyncFunc func(ctx context.Context, cfg *config.Config, notePath string, embed embedder.Client) (*ingest.Result, error)

// Daemon reads commands from in and writes one JSON response per command to
// out.
type Daemon struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
	sync   SyncFunc

	embedModel  string
	embed       embedder.Client
	embedLoaded bool
	running     bool
}

// New creates a daemon. The embed model is warmed up before the ready
// handshake; pass "" to skip warm-up.
func New(in io.Reader, out io.Writer, embedModel string, syncFn SyncFunc, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		in:         in,
		out:        out,
		logger:     logger,
		sync:       syncFn,
		embedModel: embedModel,
	}
}

// warmUpEmbedder loads the local embedding model so the first sync does not
// pay the model load. The client stays open for the daemon's lifetime.
func (d *Daemon) warmUpEmbedder() bool {
	if d.embedModel == "" {
		return false
	}

	start := time.Now()
	client, err := embedder.NewEmbedEverythingClient(embedder.Config{Model: d.embedModel})
	if err != nil {
		d.logger.Error("Embedder warm-up failed", "model", d.embedModel, "error", err)
		return false
	}
	d.embed = client

	d.logger.Info("Embedder warmed up", "model", d.embedModel, "duration", time.Since(start))
	return true
}

func (d *Daemon) emit(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		d.logger.Error("Failed to encode response", "error", err)
		return
	}
	fmt.Fprintln(d.out, string(data))
}

func errorResponse(message string) map[string]any {
	return map[string]any{"status": "error", "message": message}
}

// Run warms up, announces readiness, and processes commands until shutdown
// or EOF.
func (d *Daemon) Run(ctx context.Context) error {
	d.embedLoaded = d.warmUpEmbedder()
	d.running = true

	d.emit(map[string]any{
		"status":     "ready",
		"bge_loaded": d.embedLoaded,
		"timestamp":  float64(time.Now().UnixNano()) / 1e9,
	})

	scanner := bufio.NewScanner(d.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for d.running && scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var command map[string]any
		if err := json.Unmarshal(line, &command); err != nil {
			d.emit(errorResponse(fmt.Sprintf("Invalid JSON: %v", err)))
			continue
		}

		d.emit(d.handleCommand(ctx, command))
	}

	d.running = false
	if d.embed != nil {
		d.embed.Close()
	}
	return scanner.Err()
}

func (d *Daemon) handleCommand(ctx context.Context, command map[string]any) any {
	name, _ := command["command"].(string)

	switch name {
	case "sync":
		raw, _ := command["config"].(map[string]any)
		return d.runSync(ctx, raw)

	case "shutdown":
		d.running = false
		return map[string]any{"status": "success", "message": "Daemon shutting down"}

	case "status":
		return map[string]any{
			"status":     "success",
			"bge_loaded": d.embedLoaded,
			"running":    d.running,
		}

	default:
		return errorResponse(fmt.Sprintf("Unknown command: %s", name))
	}
}

// runSync executes the pipeline for the single note a sync command carries.
func (d *Daemon) runSync(ctx context.Context, raw map[string]any) any {
	if raw == nil {
		raw = map[string]any{}
	}
	cfg := config.FromMap(raw)

	if len(cfg.Notes) != 1 {
		return errorResponse(fmt.Sprintf("Expected exactly 1 note, got %d", len(cfg.Notes)))
	}
	cfg.SetupEnvironment()
	if d.sync == nil {
		return errorResponse("Sync pipeline not configured")
	}

	result, err := d.sync(ctx, cfg, cfg.Notes[0], d.embed)
	if err != nil {
		d.logger.Error("Sync pipeline error", "error", err)
		return errorResponse(err.Error())
	}
	if result == nil {
		return errorResponse("No result generated")
	}
	return result
}
