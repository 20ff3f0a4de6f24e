package writer

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/starford/clickup-notes/internal/apperr"
	"github.com/starford/clickup-notes/internal/models"
	"github.com/starford/clickup-notes/internal/notefmt"
	"github.com/starford/clickup-notes/internal/storage"
	"github.com/starford/clickup-notes/internal/tree"
)

func tempStore(t *testing.T) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func task(id, title, parent, content string) *models.TaskRecord {
	return &models.TaskRecord{
		ID:         id,
		Title:      title,
		Status:     "open",
		Space:      "Work",
		ParentID:   parent,
		CreatedRaw: "1700000000000",
		Created:    time.UnixMilli(1700000000000),
		Content:    content,
		Creator:    "row-creator",
	}
}

func forest(rs ...*models.TaskRecord) []*models.TaskNode {
	m := make(map[string]*models.TaskRecord, len(rs))
	for _, r := range rs {
		m[r.ID] = r
	}
	return tree.Link(m).Roots
}

func parse(t *testing.T, s storage.Provider, p string) *notefmt.Note {
	t.Helper()
	data, err := s.Read(p)
	if err != nil {
		t.Fatalf("Read %s: %v", p, err)
	}
	n, err := notefmt.Parse(data)
	if err != nil {
		t.Fatalf("Parse %s: %v", p, err)
	}
	return n
}

func TestWrite_FolderWithIndexNote(t *testing.T) {
	s := tempStore(t)
	rep := New(s, Options{Author: "Ada"}, nil).Write(forest(
		task("1", "Task A", "", "root content"),
		task("2", "Task B", "1", "child content"),
	))
	if len(rep.Failed) != 0 {
		t.Fatalf("failed = %+v", rep.Failed)
	}
	// Two folder notes, the index note and Task B.
	if len(rep.Written) != 4 || rep.Dirs != 2 {
		t.Fatalf("written = %d dirs = %d, want 4 and 2", len(rep.Written), rep.Dirs)
	}

	idx := parse(t, s, "Work/Task A/Original content from Task A.md")
	if idx.Body != "root content" || idx.Header.Order != 1 {
		t.Errorf("index note = %+v", idx)
	}
	if idx.Header.ParentID != "1" || idx.Header.ID != "1"+tree.IndexSuffix {
		t.Errorf("index ids = %q / %q", idx.Header.ID, idx.Header.ParentID)
	}

	b := parse(t, s, "Work/Task A/Task B.md")
	if b.Body != "child content" {
		t.Errorf("body = %q", b.Body)
	}
	if b.Header.Title != "Task B" || b.Header.Author != "Ada" || b.Header.Created != "1700000000000" {
		t.Errorf("header = %+v", b.Header)
	}
	if b.Header.CreatedTime != "2023-11-14T22:13:20.000Z" {
		t.Errorf("created_time = %q", b.Header.CreatedTime)
	}
	if b.Header.Order != 2 || b.Header.Kind != "leaf-note" {
		t.Errorf("order = %d kind = %q, want 2 and leaf-note", b.Header.Order, b.Header.Kind)
	}

	work := parse(t, s, "Work/"+FolderNote)
	if work.Header.Title != "Work" || work.Header.ID != "space:Work" || work.Header.Kind != "container" || work.Header.Order != 1 {
		t.Errorf("container note = %+v", work.Header)
	}
	a := parse(t, s, "Work/Task A/"+FolderNote)
	if a.Header.ID != "1" || a.Header.Kind != "folder-with-index-note" || a.Body != "" {
		t.Errorf("folder note = %+v body %q", a.Header, a.Body)
	}
}

func TestWrite_FolderMetadataKept(t *testing.T) {
	s := tempStore(t)
	plan := task("1", "Plan a/b", "", "")
	plan.Status = "in progress"
	rep := New(s, Options{Author: "Ada"}, nil).Write(forest(plan, task("2", "Kid", "1", "k")))
	if len(rep.Failed) != 0 {
		t.Fatalf("failed = %+v", rep.Failed)
	}

	n := parse(t, s, "Work/Plan a_b/"+FolderNote)
	if n.Header.Title != "Plan a/b" || n.Header.Status != "in progress" || n.Header.Created != "1700000000000" {
		t.Errorf("folder header = %+v", n.Header)
	}
	if n.Header.Order != 1 {
		t.Errorf("order = %d, want 1", n.Header.Order)
	}
	var folders int
	for _, e := range rep.Written {
		if e.Folder && !e.Container {
			folders++
		}
	}
	if folders != 1 {
		t.Errorf("task folder notes = %d, want 1", folders)
	}
}

func TestWrite_LongMultibyteTitle(t *testing.T) {
	s := tempStore(t)
	long := strings.Repeat("日", 100)
	rep := New(s, Options{}, nil).Write(forest(
		task("1", long, "", "one"),
		task("2", long, "", "two"),
		task("3", strings.Repeat("é", 300), "", "three"),
	))
	if len(rep.Failed) != 0 {
		t.Fatalf("failed = %+v", rep.Failed)
	}
	if len(rep.Written) != 4 {
		t.Fatalf("written = %+v, want container note and 3 notes", rep.Written)
	}
	for _, e := range rep.Written[1:] {
		name := strings.TrimPrefix(e.Path, "Work/")
		if len(name) > maxNameBytes+len(NoteExt) || !utf8.ValidString(name) {
			t.Errorf("name %q: %d bytes, valid utf-8 %v", name, len(name), utf8.ValidString(name))
		}
		if got := parse(t, s, e.Path).Header.Title; got != e.Title {
			t.Errorf("title = %q, want %q", got, e.Title)
		}
	}
	if rep.Written[1].Path == rep.Written[2].Path {
		t.Errorf("colliding long titles share %q", rep.Written[1].Path)
	}
}

func TestWrite_AuthorFallsBackToCreator(t *testing.T) {
	s := tempStore(t)
	New(s, Options{}, nil).Write(forest(task("1", "Solo", "", "x")))
	if got := parse(t, s, "Work/Solo.md").Header.Author; got != "row-creator" {
		t.Errorf("author = %q, want row-creator", got)
	}
}

func TestWrite_CollisionsDisambiguated(t *testing.T) {
	s := tempStore(t)
	rep := New(s, Options{}, nil).Write(forest(
		task("b", "Same", "", "second"),
		task("a", "same", "", "first"),
		task("c", "Same (a)", "", "third"),
	))
	if len(rep.Failed) != 0 {
		t.Fatalf("failed = %+v", rep.Failed)
	}
	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("files = %+v, want folder note and 3 notes", items)
	}
	if got := parse(t, s, "Work/same (a).md").Body; got != "first" {
		t.Errorf("same (a) body = %q", got)
	}
	if got := parse(t, s, "Work/Same (b).md").Body; got != "second" {
		t.Errorf("Same (b) body = %q", got)
	}
	if got := parse(t, s, "Work/Same (a)-2.md").Body; got != "third" {
		t.Errorf("Same (a)-2 body = %q", got)
	}
}

func TestWrite_ExistingFileNotOverwritten(t *testing.T) {
	s := tempStore(t)
	_ = s.Mkdir("Work")
	_ = s.Create("Work/Taken.md", []byte("precious"))

	rep := New(s, Options{}, nil).Write(forest(
		task("1", "Taken", "", "new"),
		task("2", "Free", "", "ok"),
	))
	if len(rep.Failed) != 1 || !errors.Is(rep.Failed[0].Err, apperr.ErrAlreadyExists) {
		t.Fatalf("failed = %+v, want one ErrAlreadyExists", rep.Failed)
	}
	if len(rep.Written) != 2 || !rep.Written[0].Container || rep.Written[1].ID != "2" {
		t.Errorf("written = %+v", rep.Written)
	}
	got, _ := s.Read("Work/Taken.md")
	if string(got) != "precious" {
		t.Errorf("existing file clobbered: %q", got)
	}
}

// failingStore wraps a provider and refuses to create one directory.
type failingStore struct {
	storage.Provider
	badDir string
}

func (f *failingStore) Mkdir(dir string) error {
	if dir == f.badDir {
		return errors.New("disk says no")
	}
	return f.Provider.Mkdir(dir)
}

func TestWrite_DirectoryFailureIsBestEffort(t *testing.T) {
	s := &failingStore{Provider: tempStore(t), badDir: "Work/Broken"}
	rep := New(s, Options{}, nil).Write(forest(
		task("1", "Broken", "", ""),
		task("2", "Child", "1", ""),
		task("3", "Grandchild", "2", "g"),
		task("4", "Fine", "", "f"),
	))

	if len(rep.Failed) != 3 {
		t.Fatalf("failed = %+v, want Broken, Child and Grandchild", rep.Failed)
	}
	wantPaths := []string{"Work/Broken", "Work/Broken/Child", "Work/Broken/Child/Grandchild.md"}
	for i, f := range rep.Failed {
		if f.Path != wantPaths[i] {
			t.Errorf("failed[%d] = %q, want %q", i, f.Path, wantPaths[i])
		}
	}
	if len(rep.Written) != 2 || rep.Written[1].Path != "Work/Fine.md" {
		t.Errorf("written = %+v", rep.Written)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Plain":          "Plain",
		"a/b\\c:d":       "a_b_c_d",
		"  .hidden.  ":   "hidden",
		"line\nbreak":    "line_break",
		`what? "quoted"`: "what_ _quoted_",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
	long := strings.Repeat("x", 500)
	if got := SanitizeName(long); len(got) != maxNameBytes {
		t.Errorf("len = %d, want %d", len(got), maxNameBytes)
	}
	cjk := SanitizeName(strings.Repeat("日", 100))
	if len(cjk) > maxNameBytes || !utf8.ValidString(cjk) {
		t.Errorf("cjk name: %d bytes, valid %v", len(cjk), utf8.ValidString(cjk))
	}
}

func TestAssignNames_EmptyTitleUsesKey(t *testing.T) {
	n := &models.TaskNode{Key: "abc", Role: models.RoleLeaf}
	if got := AssignNames([]*models.TaskNode{n})[n]; got != "abc.md" {
		t.Errorf("name = %q, want abc.md", got)
	}
}

func TestAssignNames_DirAndNoteDoNotClash(t *testing.T) {
	dir := &models.TaskNode{Key: "1", Name: "Topic", Role: models.RoleFolder}
	note := &models.TaskNode{Key: "2", Name: "Topic", Role: models.RoleLeaf}
	names := AssignNames([]*models.TaskNode{dir, note})
	if names[dir] != "Topic" || names[note] != "Topic.md" {
		t.Errorf("names = %q, %q", names[dir], names[note])
	}
}

func TestAssignNames_SuffixStaysWithinBudget(t *testing.T) {
	title := strings.Repeat("ü", 150)
	a := &models.TaskNode{Key: strings.Repeat("k", 90), Name: title, Role: models.RoleLeaf}
	b := &models.TaskNode{Key: "b", Name: title, Role: models.RoleLeaf}
	names := AssignNames([]*models.TaskNode{a, b})
	if names[a] == names[b] {
		t.Fatalf("names collide: %q", names[a])
	}
	for _, n := range []*models.TaskNode{a, b} {
		got := names[n]
		if len(got) > maxNameBytes+len(NoteExt) || !utf8.ValidString(got) || !strings.HasSuffix(got, ")"+NoteExt) {
			t.Errorf("name %q (%d bytes)", got, len(got))
		}
	}
}
