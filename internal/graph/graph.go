// Package graph builds the dependency graph of a patch stack.
//
// Design goals:
//   - Deterministic output (sorted nodes/edges, deduped)
//   - Dependencies that are not part of the stack are reported, not fatal;
//     installing them is the configuration tool's job
//
// Nodes are "repo/patch" labels. A patch whose archive does not follow the
// repos/<repo>/<patch>/ layout is labeled by its id alone.
package graph

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"patchstack/internal/patch"
)

// Graph is a simple directed graph (no weights). Edges point from a patch to
// the patch it depends on.
type Graph struct {
	Nodes   []string    `json:"nodes"`
	Edges   [][2]string `json:"edges"`
	Missing [][2]string `json:"missing,omitempty"`
	// Late lists edges whose dependency is loaded after the dependent patch,
	// so it overrides instead of being overridden.
	Late [][2]string `json:"late,omitempty"`
}

// ErrCycle is returned by Order when dependencies form a cycle.
var ErrCycle = errors.New("graph: dependency cycle")

// Label returns the node label of p.
func Label(p *patch.Patch) string {
	repo := RepoOf(p.Archive)
	id := p.ID
	if id == "" {
		id = path.Base(strings.TrimRight(p.Archive, "/"))
	}
	if repo == "" {
		return id
	}
	return patch.FormatDependency(repo, id)
}

// RepoOf extracts <repo> from an archive laid out as .../repos/<repo>/<patch>/.
func RepoOf(archive string) string {
	parts := strings.Split(strings.Trim(archive, "/"), "/")
	if len(parts) < 3 || parts[len(parts)-3] != "repos" {
		return ""
	}
	return parts[len(parts)-2]
}

// FromPatches builds the graph of the given stack-ordered patches.
func FromPatches(patches []*patch.Patch) Graph {
	nodeSet := make(map[string]struct{}, len(patches))
	edgeSet := make(map[[2]string]struct{})
	missingSet := make(map[[2]string]struct{})
	lateSet := make(map[[2]string]struct{})
	position := make(map[string]int, len(patches))

	for i, p := range patches {
		if p.IsInert() {
			continue
		}
		label := Label(p)
		addNode(nodeSet, label)
		if _, seen := position[label]; !seen {
			position[label] = i
		}
	}
	for i, p := range patches {
		if p.IsInert() {
			continue
		}
		from := Label(p)
		for _, dep := range p.Dependencies {
			to := dep.Resolve(RepoOf(p.Archive)).String()
			if !dep.HasRepo && RepoOf(p.Archive) == "" {
				to = dep.PatchID
			}
			edge := [2]string{from, to}
			addEdge(edgeSet, from, to)
			pos, ok := position[to]
			switch {
			case !ok:
				missingSet[edge] = struct{}{}
			case pos > i:
				lateSet[edge] = struct{}{}
			}
		}
	}

	nodes := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return Graph{
		Nodes:   nodes,
		Edges:   sortedEdges(edgeSet),
		Missing: sortedEdges(missingSet),
		Late:    sortedEdges(lateSet),
	}
}

// Order returns the nodes with every dependency before its dependents; ties
// are broken alphabetically. Missing dependencies are not part of the order.
func (g Graph) Order() ([]string, error) {
	known := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		known[n] = struct{}{}
	}
	indeg := make(map[string]int, len(g.Nodes))
	next := make(map[string][]string)
	for _, e := range g.Edges {
		if _, ok := known[e[1]]; !ok || e[0] == e[1] {
			continue
		}
		indeg[e[0]]++
		next[e[1]] = append(next[e[1]], e[0])
	}
	var ready []string
	for _, n := range g.Nodes {
		if indeg[n] == 0 {
			ready = append(ready, n)
		}
	}
	out := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		for _, m := range next[n] {
			indeg[m]--
			if indeg[m] == 0 {
				ready = append(ready, m)
			}
		}
	}
	if len(out) != len(g.Nodes) {
		var stuck []string
		for _, n := range g.Nodes {
			if indeg[n] > 0 {
				stuck = append(stuck, n)
			}
		}
		return out, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return out, nil
}

func addNode(set map[string]struct{}, n string) {
	if n != "" {
		set[n] = struct{}{}
	}
}

func addEdge(set map[[2]string]struct{}, from, to string) {
	if from != "" && to != "" {
		set[[2]string{from, to}] = struct{}{}
	}
}

func sortedEdges(set map[[2]string]struct{}) [][2]string {
	if len(set) == 0 {
		return nil
	}
	edges := make([][2]string, 0, len(set))
	for e := range set {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] == edges[j][0] {
			return edges[i][1] < edges[j][1]
		}
		return edges[i][0] < edges[j][0]
	})
	return edges
}
