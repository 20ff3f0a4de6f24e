// Package reader parses the flat CSV task export into task records.
package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/clickup-notes/internal/apperr"
	"github.com/starford/clickup-notes/internal/models"
)

// Columns maps record fields to CSV header names. Creator, Tags and
// Checklists are optional: an empty name, or a name absent from the
// header, leaves the field empty.
type Columns struct {
	ID         string `yaml:"id"`
	Title      string `yaml:"title"`
	Status     string `yaml:"status"`
	Space      string `yaml:"space"`
	Folder     string `yaml:"folder"`
	List       string `yaml:"list"`
	Parent     string `yaml:"parent"`
	Created    string `yaml:"created"`
	Content    string `yaml:"content"`
	Creator    string `yaml:"creator"`
	Tags       string `yaml:"tags"`
	Checklists string `yaml:"checklists"`
}

// DefaultColumns returns the header names used by the task export.
func DefaultColumns() Columns {
	return Columns{
		ID:         "Task ID",
		Title:      "Task Name",
		Status:     "Status",
		Space:      "Space Name",
		Folder:     "Folder Name",
		List:       "List Name",
		Parent:     "Parent ID",
		Created:    "Date Created",
		Content:    "Task Content",
		Creator:    "Created By",
		Tags:       "Tags",
		Checklists: "Checklists",
	}
}

// Validate validates the column mapping.
func (c *Columns) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Title, validation.Required),
		validation.Field(&c.Status, validation.Required),
		validation.Field(&c.Space, validation.Required),
		validation.Field(&c.Folder, validation.Required),
		validation.Field(&c.List, validation.Required),
		validation.Field(&c.Parent, validation.Required),
		validation.Field(&c.Created, validation.Required),
		validation.Field(&c.Content, validation.Required),
	)
}

func (c Columns) required() []string {
	return []string{c.ID, c.Title, c.Status, c.Space, c.Folder, c.List, c.Parent, c.Created, c.Content}
}

// Skip describes a row that was not turned into a record.
type Skip struct {
	Line   int
	ID     string
	Reason string
}

// Result is the outcome of reading one export.
type Result struct {
	Records map[string]*models.TaskRecord
	// Rows counts data rows seen, including skipped ones.
	Rows    int
	Skipped []Skip
}

// Reader parses task exports.
type Reader struct {
	cols   Columns
	logger *slog.Logger
}

// New creates a Reader for the given column mapping.
func New(cols Columns, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{cols: cols, logger: logger}
}

// ReadFile opens path and parses it.
func (r *Reader) ReadFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: open input: %w", err)
	}
	defer f.Close()
	return r.Read(f)
}

// Read parses an export from src.
func (r *Reader) Read(src io.Reader) (*Result, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reader: empty input, no header row")
		}
		return nil, fmt.Errorf("reader: read header: %w", err)
	}
	idx, err := r.indexHeader(header)
	if err != nil {
		return nil, err
	}

	res := &Result{Records: make(map[string]*models.TaskRecord)}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, fmt.Errorf("reader: read row: %w", err)
			}
			res.Rows++
			r.skip(res, Skip{Line: pe.StartLine, Reason: pe.Err.Error()})
			continue
		}
		res.Rows++
		line, _ := cr.FieldPos(0)

		if len(row) != len(header) {
			r.skip(res, Skip{
				Line:   line,
				Reason: fmt.Sprintf("wrong number of fields: got %d, want %d", len(row), len(header)),
			})
			continue
		}

		rec := idx.record(row)
		rec.Line = line
		if err := validateRecord(rec); err != nil {
			r.skip(res, Skip{Line: line, Reason: err.Error()})
			continue
		}
		if cell := idx.checklistCell(row); cell != "" {
			lists, err := ParseChecklists(cell)
			if err != nil {
				r.logger.Warn("reader: checklists ignored",
					slog.Int("line", line),
					slog.String("task_id", rec.ID),
					slog.String("error", err.Error()))
			}
			rec.Checklists = lists
			rec.Content = AppendChecklists(rec.Content, lists)
		}
		if prev, dup := res.Records[rec.ID]; dup {
			r.skip(res, Skip{
				Line:   line,
				ID:     rec.ID,
				Reason: fmt.Sprintf("duplicate task id, first seen on line %d", prev.Line),
			})
			continue
		}
		res.Records[rec.ID] = rec
	}

	r.logger.Debug("reader: parsed export",
		slog.Int("rows", res.Rows),
		slog.Int("records", len(res.Records)),
		slog.Int("skipped", len(res.Skipped)))
	return res, nil
}

func (r *Reader) skip(res *Result, s Skip) {
	res.Skipped = append(res.Skipped, s)
	r.logger.Warn("reader: row skipped",
		slog.Int("line", s.Line),
		slog.String("task_id", s.ID),
		slog.String("reason", s.Reason))
}

func validateRecord(rec *models.TaskRecord) error {
	return validation.ValidateStruct(rec,
		validation.Field(&rec.ID, validation.Required.Error("blank task id")),
	)
}

// columnIndex holds header positions; optional columns are -1 when absent.
type columnIndex struct {
	id, title, status, space, folder, list, parent, created, content int
	creator, tags, checklists                                        int
}

func (r *Reader) indexHeader(header []string) (*columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		pos[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, name := range r.cols.required() {
		if _, ok := pos[strings.TrimSpace(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("reader: %w: %s", apperr.ErrMissingColumn, strings.Join(missing, ", "))
	}

	lookup := func(name string) int {
		if name == "" {
			return -1
		}
		if i, ok := pos[strings.TrimSpace(name)]; ok {
			return i
		}
		return -1
	}
	return &columnIndex{
		id:         lookup(r.cols.ID),
		title:      lookup(r.cols.Title),
		status:     lookup(r.cols.Status),
		space:      lookup(r.cols.Space),
		folder:     lookup(r.cols.Folder),
		list:       lookup(r.cols.List),
		parent:     lookup(r.cols.Parent),
		created:    lookup(r.cols.Created),
		content:    lookup(r.cols.Content),
		creator:    lookup(r.cols.Creator),
		tags:       lookup(r.cols.Tags),
		checklists: lookup(r.cols.Checklists),
	}, nil
}

func (c *columnIndex) record(row []string) *models.TaskRecord {
	get := func(i int) string {
		if i < 0 {
			return ""
		}
		return row[i]
	}
	created := strings.TrimSpace(get(c.created))
	return &models.TaskRecord{
		ID:         strings.TrimSpace(models.ValidString(get(c.id))),
		Title:      get(c.title),
		Status:     strings.ToLower(strings.TrimSpace(get(c.status))),
		Space:      strings.TrimSpace(models.ValidString(get(c.space))),
		Folder:     strings.TrimSpace(models.ValidString(get(c.folder))),
		List:       strings.TrimSpace(models.ValidString(get(c.list))),
		ParentID:   strings.TrimSpace(models.ValidString(get(c.parent))),
		CreatedRaw: created,
		Created:    ParseCreated(created),
		Content:    FormatContent(models.ValidString(get(c.content))),
		Creator:    strings.TrimSpace(models.ValidString(get(c.creator))),
		Tags:       ParseTags(get(c.tags)),
	}
}

func (c *columnIndex) checklistCell(row []string) string {
	if c.checklists < 0 {
		return ""
	}
	return strings.TrimSpace(models.ValidString(row[c.checklists]))
}

// ParseCreated interprets an epoch-milliseconds timestamp. Unparsable
// values yield the zero time.
func ParseCreated(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

// FormatContent turns literal "\n" escape sequences into newlines.
func FormatContent(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

// ParseTags splits a "[a,b]" style tag cell.
func ParseTags(raw string) []string {
	raw = strings.TrimSpace(models.ValidString(raw))
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.Trim(strings.TrimSpace(t), `"'`)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ParseChecklists decodes a checklist cell such as
// {"Groceries":["milk","eggs"]}. Both JSON and single-quoted item lists
// are accepted; checklists keep the order they appear in.
func ParseChecklists(raw string) ([]models.Checklist, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("reader: checklists: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("reader: checklists: want a mapping, got %q", raw)
	}
	var out []models.Checklist
	for i := 0; i+1 < len(m.Content); i += 2 {
		cl := models.Checklist{Name: m.Content[i].Value}
		if err := m.Content[i+1].Decode(&cl.Items); err != nil {
			return nil, fmt.Errorf("reader: checklist %q: %w", cl.Name, err)
		}
		out = append(out, cl)
	}
	return out, nil
}

// AppendChecklists renders lists as unchecked Markdown task items after
// content, separated by a blank line.
func AppendChecklists(content string, lists []models.Checklist) string {
	if len(lists) == 0 {
		return content
	}
	var b strings.Builder
	b.WriteString(content)
	for _, cl := range lists {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("### " + cl.Name)
		for _, item := range cl.Items {
			b.WriteString("\n- [ ] " + item)
		}
	}
	return b.String()
}
