// Package prerequisite models the directed acyclic relation over core
// loops: prereq_core_loop -> dependent_core_loop.
package prerequisite

import (
	"sync"

	"github.com/corelearn/ale/internal/engineerr"
)

// Graph is a directed acyclic relation over core loop ids. It is safe for
// concurrent use.
type Graph struct {
	mu sync.RWMutex
	// forward[a] is the set of b such that a -> b (a is prereq of b).
	forward map[string]map[string]struct{}
	// backward[b] is the set of a such that a -> b.
	backward map[string]map[string]struct{}
}

// New returns an empty prerequisite graph.
func New() *Graph {
	return &Graph{
		forward:  make(map[string]map[string]struct{}),
		backward: make(map[string]map[string]struct{}),
	}
}

// AddEdge adds a directed edge prereq -> dependent. It is rejected with
// ErrWouldCreateCycle if dependent already (transitively) reaches prereq,
// and the graph is left unchanged.
func (g *Graph) AddEdge(prereq, dependent string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prereq == dependent {
		return engineerr.ErrWouldCreateCycle
	}
	if g.reaches(dependent, prereq) {
		return engineerr.ErrWouldCreateCycle
	}

	if g.forward[prereq] == nil {
		g.forward[prereq] = make(map[string]struct{})
	}
	g.forward[prereq][dependent] = struct{}{}

	if g.backward[dependent] == nil {
		g.backward[dependent] = make(map[string]struct{})
	}
	g.backward[dependent][prereq] = struct{}{}

	return nil
}

// reaches reports whether a BFS from `from` along forward edges reaches
// `to`. Caller must hold g.mu.
func (g *Graph) reaches(from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]struct{}{from: {}}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g.forward[cur] {
			if next == to {
				return true
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return false
}

// PrereqsOf returns the transitive predecessors of x: every core loop
// that must be mastered, directly or indirectly, before x.
func (g *Graph) PrereqsOf(x string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bfs(x, g.backward)
}

// DependentsOf returns the transitive successors of x: every core loop
// that depends, directly or indirectly, on x.
func (g *Graph) DependentsOf(x string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bfs(x, g.forward)
}

// bfs walks `edges` starting at x and returns every node reached,
// excluding x itself, in discovery order. Caller must hold g.mu (for
// reading).
func (g *Graph) bfs(x string, edges map[string]map[string]struct{}) []string {
	visited := map[string]struct{}{x: {}}
	queue := []string{x}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range edges[cur] {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out
}
