// Package models defines the domain types for the task converter.
package models

import (
	"strings"
	"time"
)

// TaskRecord is one parsed row of the task export.
type TaskRecord struct {
	ID         string
	Title      string
	Status     string
	Space      string
	Folder     string
	List       string
	ParentID   string
	CreatedRaw string    // Date Created exactly as exported
	Created    time.Time // zero when CreatedRaw is not an epoch timestamp
	Content    string
	Creator    string
	Tags       []string
	Checklists []Checklist
	Line       int
}

// Checklist is a named list of items attached to a task. Item completion
// is not part of the export.
type Checklist struct {
	Name  string
	Items []string
}

// Role tells the writer how a node is materialised on disk.
type Role int

const (
	// RoleContainer is a synthetic space/folder/list directory.
	RoleContainer Role = iota
	// RoleLeaf is a task without children, written as one note.
	RoleLeaf
	// RoleFolder is a task with children, written as a directory.
	RoleFolder
)

func (r Role) String() string {
	switch r {
	case RoleContainer:
		return "container"
	case RoleLeaf:
		return "leaf-note"
	case RoleFolder:
		return "folder-with-index-note"
	}
	return "unknown"
}

// TaskNode is a position in the output tree.
type TaskNode struct {
	// Key identifies the node: the task ID, or a "space:..." style key
	// for containers.
	Key  string
	Name string
	Role Role
	// Order is the 1-based sort hint among siblings.
	Order int
	// Synthetic marks the generated index note of a folder.
	Synthetic bool
	// Record is nil for containers.
	Record   *TaskRecord
	Children []*TaskNode
}

// IsDir reports whether the node becomes a directory.
func (n *TaskNode) IsDir() bool {
	return n.Role == RoleContainer || n.Role == RoleFolder
}

// Walk visits n and every descendant depth-first.
func (n *TaskNode) Walk(fn func(*TaskNode)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// ValidString returns s unless it is empty or one of the placeholder
// values the export uses for "nothing" (null, hidden, {}, []).
func ValidString(s string) string {
	switch strings.TrimSpace(s) {
	case "", "null", "hidden", "{}", "[]":
		return ""
	}
	return s
}
