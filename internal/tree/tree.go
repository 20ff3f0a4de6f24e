// Package tree assembles task records into the output forest.
//
// Assembly is two ordered passes: Filter drops records whose status is in
// the do-not-convert set, then Link attaches the survivors to their
// parents. A record whose parent was filtered out (or never exported) is
// promoted to its own container, so exclusion never silently drops a
// convertible descendant.
package tree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starford/clickup-notes/internal/apperr"
	"github.com/starford/clickup-notes/internal/models"
)

// NoSpace names the container for records exported without a space.
const NoSpace = "No Space"

// IndexSuffix is appended to a folder's ID to form its index note ID.
const IndexSuffix = "TaskContent"

// Result is the assembled forest plus the anomalies resolved on the way.
type Result struct {
	// Roots holds one container per space, sorted by name.
	Roots []*models.TaskNode
	// Promoted lists IDs whose parent reference could not be resolved.
	Promoted []string
	// Cycles lists IDs whose parent edge was cut to break a cycle.
	Cycles []CycleError
}

// CycleError reports a record that was its own ancestor.
type CycleError struct {
	ID    string
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("task %s: %v through %s", e.ID, apperr.ErrCycle, strings.Join(e.Chain, " -> "))
}

func (e *CycleError) Unwrap() error { return apperr.ErrCycle }

// Build runs Filter then Link. The second return value counts excluded
// records.
func Build(records map[string]*models.TaskRecord, exclude []string) (*Result, int) {
	kept, excluded := Filter(records, exclude)
	return Link(kept), len(excluded)
}

// Filter splits records into those to convert and the IDs (sorted) of
// those whose status is in exclude. Status matching is case-insensitive.
func Filter(records map[string]*models.TaskRecord, exclude []string) (map[string]*models.TaskRecord, []string) {
	skip := make(map[string]struct{}, len(exclude))
	for _, s := range exclude {
		skip[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	kept := make(map[string]*models.TaskRecord, len(records))
	var excluded []string
	for id, rec := range records {
		if _, ok := skip[strings.ToLower(rec.Status)]; ok {
			excluded = append(excluded, id)
			continue
		}
		kept[id] = rec
	}
	sort.Strings(excluded)
	return kept, excluded
}

// Link builds the forest from records that survived filtering.
func Link(kept map[string]*models.TaskRecord) *Result {
	res := &Result{}

	ids := make([]string, 0, len(kept))
	for id := range kept {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parent := make(map[string]string, len(kept))
	for _, id := range ids {
		p := kept[id].ParentID
		if p == "" {
			continue
		}
		if _, ok := kept[p]; !ok {
			res.Promoted = append(res.Promoted, id)
			continue
		}
		parent[id] = p
	}
	res.Cycles = breakCycles(ids, parent)

	nodes := make(map[string]*models.TaskNode, len(kept))
	for _, id := range ids {
		rec := kept[id]
		nodes[id] = &models.TaskNode{Key: id, Name: rec.Title, Record: rec}
	}

	containers := newContainerSet()
	for _, id := range ids {
		n := nodes[id]
		if p, ok := parent[id]; ok {
			nodes[p].Children = append(nodes[p].Children, n)
			continue
		}
		c := containers.forRecord(n.Record)
		c.Children = append(c.Children, n)
	}

	for _, id := range ids {
		assignRole(nodes[id])
	}
	res.Roots = containers.roots()
	for _, r := range res.Roots {
		r.Walk(sortChildren)
	}
	return res
}

// breakCycles cuts parent edges until the graph is a forest. Each cycle
// loses the edge of its smallest ID, so the outcome does not depend on
// which member is visited first.
func breakCycles(ids []string, parent map[string]string) []CycleError {
	var cycles []CycleError
	done := make(map[string]bool, len(ids))
	for _, start := range ids {
		if done[start] {
			continue
		}
		pos := make(map[string]int)
		var path []string
		cur := start
		for {
			if done[cur] {
				break
			}
			if i, seen := pos[cur]; seen {
				loop := path[i:]
				victim := loop[0]
				for _, id := range loop[1:] {
					if id < victim {
						victim = id
					}
				}
				chain := []string{victim}
				for c := parent[victim]; c != victim; c = parent[c] {
					chain = append(chain, c)
				}
				chain = append(chain, victim)
				delete(parent, victim)
				cycles = append(cycles, CycleError{ID: victim, Chain: chain})
				break
			}
			pos[cur] = len(path)
			path = append(path, cur)
			next, ok := parent[cur]
			if !ok {
				break
			}
			cur = next
		}
		for _, id := range path {
			done[id] = true
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].ID < cycles[j].ID })
	return cycles
}

// assignRole marks n as a folder when it has children and, if it carries
// content, gives it an index note holding that content.
func assignRole(n *models.TaskNode) {
	if len(n.Children) == 0 {
		n.Role = models.RoleLeaf
		return
	}
	n.Role = models.RoleFolder
	if strings.TrimSpace(n.Record.Content) == "" {
		return
	}
	rec := *n.Record
	rec.ID = n.Record.ID + IndexSuffix
	rec.ParentID = n.Record.ID
	rec.Title = "Original content from " + n.Record.Title
	n.Children = append(n.Children, &models.TaskNode{
		Key:       rec.ID,
		Name:      rec.Title,
		Role:      models.RoleLeaf,
		Synthetic: true,
		Record:    &rec,
	})
}

// sortChildren orders n's children (index note, then containers by name,
// then tasks by ID) and numbers them from 1.
func sortChildren(n *models.TaskNode) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra < rb
		}
		if a.Role == models.RoleContainer {
			return a.Name < b.Name
		}
		return a.Key < b.Key
	})
	for i, c := range n.Children {
		c.Order = i + 1
	}
}

func rank(n *models.TaskNode) int {
	switch {
	case n.Synthetic:
		return 0
	case n.Role == models.RoleContainer:
		return 1
	}
	return 2
}

// containerSet interns space → folder → list containers by label path.
type containerSet struct {
	byKey  map[string]*models.TaskNode
	spaces []*models.TaskNode
}

func newContainerSet() *containerSet {
	return &containerSet{byKey: make(map[string]*models.TaskNode)}
}

func (s *containerSet) forRecord(rec *models.TaskRecord) *models.TaskNode {
	space := rec.Space
	if space == "" {
		space = NoSpace
	}
	key := "space:" + space
	node := s.get(nil, key, space)
	if rec.Folder != "" {
		key += "/folder:" + rec.Folder
		node = s.get(node, key, rec.Folder)
	}
	if rec.List != "" {
		key += "/list:" + rec.List
		node = s.get(node, key, rec.List)
	}
	return node
}

func (s *containerSet) get(parent *models.TaskNode, key, name string) *models.TaskNode {
	if n, ok := s.byKey[key]; ok {
		return n
	}
	n := &models.TaskNode{Key: key, Name: name, Role: models.RoleContainer}
	s.byKey[key] = n
	if parent == nil {
		s.spaces = append(s.spaces, n)
	} else {
		parent.Children = append(parent.Children, n)
	}
	return n
}

func (s *containerSet) roots() []*models.TaskNode {
	out := append([]*models.TaskNode(nil), s.spaces...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	for i, r := range out {
		r.Order = i + 1
	}
	return out
}
