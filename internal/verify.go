package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/clickup-notes/internal/manifest"
	"github.com/starford/clickup-notes/internal/notefmt"
	"github.com/starford/clickup-notes/internal/storage"
)

// VerifyReport is the outcome of checking an output tree.
type VerifyReport struct {
	Notes   int
	Invalid []string // notes whose header does not parse
	// Manifest comparison; empty when no manifest is configured or no
	// run was recorded for the output directory.
	RunID    int64
	Modified []string
	Missing  []string
	Extra    []string
	// PreviouslyFailed lists paths the recorded run could not write. They
	// are informational and do not affect OK.
	PreviouslyFailed []string
}

// OK reports whether verification found nothing wrong.
func (r *VerifyReport) OK() bool {
	return len(r.Invalid) == 0 && len(r.Modified) == 0 && len(r.Missing) == 0 && len(r.Extra) == 0
}

// Verify re-reads every note under the output directory and, when a
// manifest is configured, compares the tree against the latest recorded run.
func Verify(ctx context.Context, opts ...Option) (*VerifyReport, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg, logger := app.config, app.logger

	store, err := storage.NewFS(cfg.Output.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	metas, err := store.List("")
	if err != nil {
		return nil, err
	}

	rep := &VerifyReport{}
	onDisk := make(map[string]string, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		onDisk[m.Path] = m.Checksum
		rep.Notes++

		data, err := store.Read(m.Path)
		if err != nil {
			return nil, err
		}
		if _, err := notefmt.Parse(data); err != nil {
			logger.Warn("verify: invalid note", slog.String("path", m.Path), slog.String("error", err.Error()))
			rep.Invalid = append(rep.Invalid, m.Path)
		}
	}

	if cfg.Manifest.Enabled() {
		if err := compareManifest(cfg, store, onDisk, rep); err != nil {
			return nil, err
		}
	}

	logger.Info("Verification finished",
		slog.Int("notes", rep.Notes),
		slog.Int("invalid", len(rep.Invalid)),
		slog.Int64("run_id", rep.RunID),
		slog.Int("modified", len(rep.Modified)),
		slog.Int("missing", len(rep.Missing)),
		slog.Int("extra", len(rep.Extra)),
		slog.Int("previously_failed", len(rep.PreviouslyFailed)))
	return rep, nil
}

func compareManifest(cfg *Config, store *storage.FS, onDisk map[string]string, rep *VerifyReport) error {
	db, err := manifest.Open(cfg.Manifest.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.LatestRun(store.Root())
	if err != nil || run == nil {
		return err
	}
	rep.RunID = run.ID

	recorded, err := db.Checksums(run.ID)
	if err != nil {
		return err
	}
	for p, cs := range recorded {
		got, ok := onDisk[p]
		switch {
		case !ok:
			rep.Missing = append(rep.Missing, p)
		case got != cs:
			rep.Modified = append(rep.Modified, p)
		}
	}
	for p := range onDisk {
		if _, ok := recorded[p]; !ok {
			rep.Extra = append(rep.Extra, p)
		}
	}
	failures, err := db.Failures(run.ID)
	if err != nil {
		return err
	}
	for _, f := range failures {
		rep.PreviouslyFailed = append(rep.PreviouslyFailed, f.Path)
	}
	sort.Strings(rep.Missing)
	sort.Strings(rep.Modified)
	sort.Strings(rep.Extra)
	return nil
}
