// Package testutil provides shared test helpers for exports and output trees.
package testutil

import (
	"encoding/csv"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// ExportHeader is the header row of a task export, including the leading
// space the exporter puts before "Task Name".
var ExportHeader = []string{
	"Task ID", " Task Name", "Status", "Space Name", "Folder Name", "List Name",
	"Parent ID", "Date Created", "Task Content",
}

// WriteExport writes a CSV export with ExportHeader and rows into a
// temporary directory and returns its path.
func WriteExport(t *testing.T, rows ...[]string) string {
	t.Helper()
	return WriteExportWithHeader(t, ExportHeader, rows...)
}

// WriteExportWithHeader is WriteExport with a custom header row.
func WriteExportWithHeader(t *testing.T, header []string, rows ...[]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteAll(rows); err != nil {
		t.Fatal(err)
	}
	return path
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Snapshot returns relative path → content for every file under root;
// directories map to "<dir>".
func Snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			out[rel] = "<dir>"
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[rel] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}
