// Package internal provides the converter's initialization and run logic.
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/clickup-notes/internal/apperr"
	"github.com/starford/clickup-notes/internal/manifest"
	"github.com/starford/clickup-notes/internal/reader"
	"github.com/starford/clickup-notes/internal/storage"
	"github.com/starford/clickup-notes/internal/tree"
	"github.com/starford/clickup-notes/internal/writer"
)

// Summary is the end-of-run account of a conversion.
type Summary struct {
	Rows     int
	Records  int
	Skipped  int
	Excluded int
	Promoted int
	Cycles   int
	Written  int
	Indexes  int
	// Folders and Containers count directory metadata notes, which are
	// included in Written.
	Folders    int
	Containers int
	Dirs       int
	Failed     int
	// RunID is the manifest run ID, zero when no manifest is configured.
	RunID int64
}

// Run converts the configured export into the output tree.
//
// Row-level problems are skipped and per-node write failures are
// collected; both are reported in the summary. Run returns an error
// wrapping apperr.ErrPartialWrite when any node failed, after everything
// else has been written.
func Run(ctx context.Context, opts ...Option) (*Summary, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg, logger := app.config, app.logger
	started := time.Now()

	logger.Info("Configuration loaded",
		slog.String("input_path", cfg.Input.Path),
		slog.String("output_path", cfg.Output.Path),
		slog.String("manifest_path", cfg.Manifest.Path),
		slog.Any("do_not_convert", cfg.Convert.DoNotConvert),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Read.
	read, err := reader.New(cfg.Input.Columns, logger).ReadFile(cfg.Input.Path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Build.
	built, excluded := tree.Build(read.Records, cfg.Convert.DoNotConvert)
	for _, id := range built.Promoted {
		rec := read.Records[id]
		logger.Info("tree: parent not converted, promoted to container",
			slog.String("task_id", id),
			slog.String("parent_id", rec.ParentID))
	}
	for i := range built.Cycles {
		logger.Warn("tree: parent cycle broken",
			slog.String("task_id", built.Cycles[i].ID),
			slog.String("error", built.Cycles[i].Error()))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Write.
	if err := os.MkdirAll(cfg.Output.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Output.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := store.CheckWritable(); err != nil {
		return nil, fmt.Errorf("check output dir: %w", err)
	}
	report := writer.New(store, writer.Options{Author: cfg.Output.Author}, logger).Write(built.Roots)

	sum := &Summary{
		Rows:     read.Rows,
		Records:  len(read.Records),
		Skipped:  len(read.Skipped),
		Excluded: excluded,
		Promoted: len(built.Promoted),
		Cycles:   len(built.Cycles),
		Written:  len(report.Written),
		Dirs:     report.Dirs,
		Failed:   len(report.Failed),
	}
	for _, e := range report.Written {
		switch {
		case e.Synthetic:
			sum.Indexes++
		case e.Container:
			sum.Containers++
		case e.Folder:
			sum.Folders++
		}
	}

	if cfg.Manifest.Enabled() {
		runID, err := recordRun(cfg, store, started, sum, report)
		if err != nil {
			// The notes are on disk already; a manifest problem must not
			// hide that.
			logger.Error("manifest: record failed", slog.String("error", err.Error()))
		} else {
			sum.RunID = runID
		}
	}

	logger.Info("Conversion finished",
		slog.Int("rows", sum.Rows),
		slog.Int("records", sum.Records),
		slog.Int("skipped", sum.Skipped),
		slog.Int("excluded", sum.Excluded),
		slog.Int("promoted", sum.Promoted),
		slog.Int("cycles", sum.Cycles),
		slog.Int("written", sum.Written),
		slog.Int("index_notes", sum.Indexes),
		slog.Int("folder_notes", sum.Folders),
		slog.Int("container_notes", sum.Containers),
		slog.Int("dirs", sum.Dirs),
		slog.Int("failed", sum.Failed),
		slog.Duration("elapsed", time.Since(started)))

	if sum.Failed > 0 {
		for _, f := range report.Failed {
			logger.Error("node not written",
				slog.String("path", f.Path),
				slog.String("key", f.ID),
				slog.String("error", f.Err.Error()))
		}
		return sum, fmt.Errorf("%w: %d failed, %d notes written", apperr.ErrPartialWrite, sum.Failed, sum.Written)
	}
	return sum, nil
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := app.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if app.logger == nil {
		// Initialize structured JSON logger.
		app.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
		slog.SetDefault(app.logger)
	}
	return app, nil
}

func recordRun(cfg *Config, store *storage.FS, started time.Time, sum *Summary, report *writer.Report) (int64, error) {
	db, err := manifest.Open(cfg.Manifest.Path)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	notes := make([]manifest.Note, 0, len(report.Written))
	for _, e := range report.Written {
		data, err := store.Read(e.Path)
		if err != nil {
			return 0, err
		}
		notes = append(notes, manifest.Note{
			Path:      e.Path,
			TaskID:    e.ID,
			Title:     e.Title,
			Synthetic: e.Synthetic,
			Checksum:  storage.Checksum(data),
		})
	}
	failures := make([]manifest.Failure, 0, len(report.Failed))
	for _, f := range report.Failed {
		failures = append(failures, manifest.Failure{Path: f.Path, TaskID: f.ID, Error: f.Err.Error()})
	}

	return db.Record(manifest.Run{
		StartedAt:  started,
		InputPath:  cfg.Input.Path,
		OutputPath: store.Root(),
		Rows:       sum.Rows,
		Skipped:    sum.Skipped,
		Excluded:   sum.Excluded,
		Promoted:   sum.Promoted,
		Written:    sum.Written,
		Failed:     sum.Failed,
	}, notes, failures)
}
