// Package writer materialises the task forest as note files.
package writer

import (
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/starford/clickup-notes/internal/models"
	"github.com/starford/clickup-notes/internal/notefmt"
	"github.com/starford/clickup-notes/internal/storage"
)

// NoteExt is the extension of every note file.
const NoteExt = ".md"

// FolderNote is the metadata note written inside every directory. Derived
// names never start with a dot, so it cannot collide with a child.
const FolderNote = ".folder.md"

// maxNameBytes caps a derived name, suffixes included, in UTF-8 bytes.
// With the extension it stays well below the usual 255-byte NAME_MAX.
const maxNameBytes = 200

// maxKeyBytes caps the key used in a " (<key>)" disambiguation suffix.
const maxKeyBytes = 40

// createdLayout is the ISO-8601 form written to created_time.
const createdLayout = "2006-01-02T15:04:05.000Z"

// Options configures note rendering.
type Options struct {
	// Author is stamped on every note. When empty the record's creator
	// is used instead.
	Author string
}

// Entry describes one written note.
type Entry struct {
	Path  string
	ID    string
	Title string
	// Synthetic marks a folder's index note.
	Synthetic bool
	// Folder marks the metadata note of a directory; Container narrows
	// that to space, folder and list directories.
	Folder    bool
	Container bool
}

// Failure describes a node that could not be written.
type Failure struct {
	Path string
	ID   string
	Err  error
}

// Report summarises a write pass.
type Report struct {
	Written []Entry
	Dirs    int
	Failed  []Failure
}

// Writer walks a forest and writes it through a storage.Provider.
type Writer struct {
	store  storage.Provider
	opts   Options
	logger *slog.Logger
}

// New creates a Writer.
func New(store storage.Provider, opts Options, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, opts: opts, logger: logger}
}

// Write emits every node under roots. Failures are collected in the
// report; they never stop the traversal of unrelated nodes.
func (w *Writer) Write(roots []*models.TaskNode) *Report {
	rep := &Report{}
	w.writeChildren(rep, "", "", roots)
	return rep
}

func (w *Writer) writeChildren(rep *Report, dir, parentKey string, nodes []*models.TaskNode) {
	names := AssignNames(nodes)
	for _, n := range nodes {
		p := path.Join(dir, names[n])
		if n.IsDir() {
			w.writeDir(rep, p, parentKey, n)
			continue
		}
		w.writeNote(rep, Entry{
			Path:      p,
			ID:        n.Key,
			Title:     n.Name,
			Synthetic: n.Synthetic,
		}, w.header(n, parentKey), n.Record.Content)
	}
}

func (w *Writer) writeDir(rep *Report, p, parentKey string, n *models.TaskNode) {
	if err := w.store.Mkdir(p); err != nil {
		w.logger.Error("writer: directory failed",
			slog.String("path", p),
			slog.String("key", n.Key),
			slog.String("error", err.Error()))
		w.failSubtree(rep, p, n, err)
		return
	}
	rep.Dirs++

	// Index content has its own note, so the folder note is header only.
	w.writeNote(rep, Entry{
		Path:      path.Join(p, FolderNote),
		ID:        n.Key,
		Title:     n.Name,
		Folder:    true,
		Container: n.Record == nil,
	}, w.header(n, parentKey), "")
	w.writeChildren(rep, p, n.Key, n.Children)
}

// failSubtree reports n and every descendant as failed because their
// directory could not be created.
func (w *Writer) failSubtree(rep *Report, p string, n *models.TaskNode, err error) {
	rep.Failed = append(rep.Failed, Failure{Path: p, ID: n.Key, Err: err})
	names := AssignNames(n.Children)
	for _, c := range n.Children {
		w.failSubtree(rep, path.Join(p, names[c]), c, fmt.Errorf("parent directory %s: %w", p, err))
	}
}

func (w *Writer) writeNote(rep *Report, e Entry, h notefmt.Header, body string) {
	data, err := notefmt.Encode(h, body)
	if err == nil {
		err = w.store.Create(e.Path, data)
	}
	if err != nil {
		w.logger.Error("writer: note failed",
			slog.String("path", e.Path),
			slog.String("key", e.ID),
			slog.String("error", err.Error()))
		rep.Failed = append(rep.Failed, Failure{Path: e.Path, ID: e.ID, Err: err})
		return
	}
	w.logger.Debug("writer: note written", slog.String("path", e.Path), slog.String("key", e.ID))
	rep.Written = append(rep.Written, e)
}

// header builds the metadata of n. Containers have no record; they take
// their key as ID and the enclosing directory's key as parent.
func (w *Writer) header(n *models.TaskNode, parentKey string) notefmt.Header {
	rec := n.Record
	if rec == nil {
		return notefmt.Header{
			Title:    n.Name,
			ID:       n.Key,
			ParentID: parentKey,
			Author:   w.opts.Author,
			Order:    n.Order,
			Kind:     n.Role.String(),
		}
	}
	author := w.opts.Author
	if author == "" {
		author = rec.Creator
	}
	h := notefmt.Header{
		Title:    rec.Title,
		ID:       rec.ID,
		ParentID: rec.ParentID,
		Author:   author,
		Created:  rec.CreatedRaw,
		Status:   rec.Status,
		Space:    rec.Space,
		Folder:   rec.Folder,
		List:     rec.List,
		Tags:     rec.Tags,
		Order:    n.Order,
		Kind:     n.Role.String(),
	}
	if !rec.Created.IsZero() {
		h.CreatedTime = FormatCreated(rec.Created)
	}
	return h
}

// AssignNames derives a unique on-disk name for every node in siblings,
// ignoring case. Siblings whose sanitised titles collide all get their
// key appended, so which one keeps the plain name never depends on input
// order. Names still taken after that get a numeric suffix.
func AssignNames(siblings []*models.TaskNode) map[*models.TaskNode]string {
	base := make(map[*models.TaskNode]string, len(siblings))
	count := make(map[string]int, len(siblings))
	for _, n := range siblings {
		b := SanitizeName(n.Name)
		if b == "" {
			b = SanitizeName(n.Key)
		}
		if b == "" {
			b = "untitled"
		}
		base[n] = b
		count[fold(n, b)]++
	}

	used := make(map[string]bool, len(siblings))
	out := make(map[*models.TaskNode]string, len(siblings))
	for _, n := range siblings {
		name := base[n]
		if count[fold(n, name)] > 1 {
			name = withSuffix(name, " ("+truncate(SanitizeName(n.Key), maxKeyBytes)+")")
		}
		candidate := name
		for i := 2; used[fold(n, candidate)]; i++ {
			candidate = withSuffix(name, fmt.Sprintf("-%d", i))
		}
		used[fold(n, candidate)] = true
		out[n] = onDisk(n, candidate)
	}
	return out
}

func onDisk(n *models.TaskNode, name string) string {
	if n.IsDir() {
		return name
	}
	return name + NoteExt
}

func fold(n *models.TaskNode, name string) string {
	return strings.ToLower(onDisk(n, name))
}

// withSuffix appends suffix to name, shortening name so the result stays
// within maxNameBytes.
func withSuffix(name, suffix string) string {
	return truncate(name, maxNameBytes-len(suffix)) + suffix
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// SanitizeName turns a title into a portable file name: path separators,
// reserved and control characters become '_', surrounding spaces and dots
// are trimmed, and the result is capped at maxNameBytes.
func SanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == utf8.RuneError, unicode.IsControl(r):
			b.WriteRune('_')
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	name := strings.Trim(b.String(), " .")
	if len(name) > maxNameBytes {
		name = strings.TrimRight(truncate(name, maxNameBytes), " .")
	}
	return name
}

// FormatCreated renders t the way created_time is written.
func FormatCreated(t time.Time) string {
	return t.UTC().Format(createdLayout)
}
