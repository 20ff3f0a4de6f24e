// Package notefmt encodes and parses the plain-text note format: a fenced
// YAML metadata header, a blank line, then the free-text body.
package notefmt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Source values stamped on every note.
const (
	Source            = "com.clickup"
	SourceApplication = "clickup-notes"
)

var (
	// ErrMissingHeader indicates the note did not start with a header fence.
	ErrMissingHeader = errors.New("notefmt: missing header")
	// ErrMalformedHeader indicates the header could not be decoded.
	ErrMalformedHeader = errors.New("notefmt: malformed header")
)

// Header is the metadata block of a note. Field order is the on-disk order.
type Header struct {
	Title             string   `yaml:"title"`
	ID                string   `yaml:"id"`
	ParentID          string   `yaml:"parent_id"`
	Author            string   `yaml:"author"`
	Created           string   `yaml:"created"`
	CreatedTime       string   `yaml:"created_time,omitempty"`
	Status            string   `yaml:"status,omitempty"`
	Space             string   `yaml:"space,omitempty"`
	Folder            string   `yaml:"folder,omitempty"`
	List              string   `yaml:"list,omitempty"`
	Tags              []string `yaml:"tags,omitempty"`
	Order             int      `yaml:"order"`
	Kind              string   `yaml:"kind,omitempty"`
	Source            string   `yaml:"source"`
	SourceApplication string   `yaml:"source_application"`
}

// Note is a parsed note file.
type Note struct {
	Header Header
	Body   string
}

// Encode renders h and body as a note.
func Encode(h Header, body string) ([]byte, error) {
	if h.Source == "" {
		h.Source = Source
	}
	if h.SourceApplication == "" {
		h.SourceApplication = SourceApplication
	}

	var meta bytes.Buffer
	enc := yaml.NewEncoder(&meta)
	enc.SetIndent(2)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("notefmt: encode header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("notefmt: encode header: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(bytes.TrimRight(meta.Bytes(), "\n"))
	buf.WriteString("\n" + delim + "\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// Parse splits data into header and body. The single blank line that
// separates them is not part of the body.
func Parse(data []byte) (*Note, error) {
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte(delim+"\n")) {
		return nil, ErrMissingHeader
	}

	rest := normalized[len(delim)+1:]
	var block, after []byte
	if bytes.HasPrefix(rest, []byte(delim+"\n")) || bytes.Equal(rest, []byte(delim)) {
		after = rest[len(delim):]
	} else {
		idx := bytes.Index(rest, []byte("\n"+delim))
		if idx < 0 {
			return nil, fmt.Errorf("%w: no closing fence", ErrMalformedHeader)
		}
		block = rest[:idx]
		after = rest[idx+1+len(delim):]
	}
	if len(after) > 0 && after[0] != '\n' {
		return nil, fmt.Errorf("%w: closing fence not on its own line", ErrMalformedHeader)
	}

	var h Header
	if err := yaml.Unmarshal(block, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	body := strings.TrimPrefix(string(after), "\n")
	body = strings.TrimPrefix(body, "\n")
	return &Note{Header: h, Body: body}, nil
}
