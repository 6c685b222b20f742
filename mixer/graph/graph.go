// Package graph keeps the signal-flow relation between routes: which route
// feeds which, directly through port connections or internal sends, and
// transitively. The transitive relation is cached per source route and
// recomputed only for sources affected by an edge change.
package graph

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/cwbudde/algo-mixer/mixer/processor"
)

// ID identifies a route.
type ID = processor.RouteID

// ErrCycle is returned by Order when the routes form a feedback loop.
var ErrCycle = errors.New("graph: routes form a cycle")

// Edge is a direct signal-flow connection. A connection carried only by
// sends has ViaSendsOnly set.
type Edge struct {
	From, To     ID
	ViaSendsOnly bool
}

type link struct {
	ports bool
	sends bool
}

// reach records how a source reaches a target: any path at all, and whether
// a path of port connections exists.
type reach struct {
	any   bool
	ports bool
}

// Pair is an ordered pair of routes.
type Pair struct{ From, To ID }

// Relation maps every pair (a, b) where a feeds b to whether a feeds b only
// through sends.
type Relation map[Pair]bool

// Graph is the route adjacency. It is not safe for concurrent use; the
// session guards it with its own lock.
type Graph struct {
	nodes map[ID]struct{}
	out   map[ID]map[ID]link
	rows  map[ID]map[ID]reach
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[ID]struct{}),
		out:   make(map[ID]map[ID]link),
		rows:  make(map[ID]map[ID]reach),
	}
}

// AddNode adds a route without edges.
func (g *Graph) AddNode(id ID) {
	g.nodes[id] = struct{}{}
}

// RemoveNode removes a route and every edge touching it.
func (g *Graph) RemoveNode(id ID) {
	if _, ok := g.nodes[id]; !ok {
		return
	}
	g.invalidate(id)
	delete(g.nodes, id)
	delete(g.out, id)
	for _, m := range g.out {
		delete(m, id)
	}
	delete(g.rows, id)
}

// Has reports whether id is a node.
func (g *Graph) Has(id ID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all routes in ascending order.
func (g *Graph) Nodes() []ID {
	ids := make([]ID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SetEdges replaces the direct out-edges of from. Edges to unknown routes and
// self edges are ignored. Duplicate edges are merged; a pair is via sends
// only if no edge between them is a port connection.
func (g *Graph) SetEdges(from ID, edges []Edge) {
	if !g.Has(from) {
		return
	}
	next := make(map[ID]link, len(edges))
	for _, e := range edges {
		if e.To == from || !g.Has(e.To) {
			continue
		}
		l := next[e.To]
		if e.ViaSendsOnly {
			l.sends = true
		} else {
			l.ports = true
		}
		next[e.To] = l
	}
	if equalLinks(g.out[from], next) {
		return
	}
	g.invalidate(from)
	g.out[from] = next
}

func equalLinks(a, b map[ID]link) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Edges returns the direct out-edges of from in ascending target order.
func (g *Graph) Edges(from ID) []Edge {
	out := make([]Edge, 0, len(g.out[from]))
	for to, l := range g.out[from] {
		out = append(out, Edge{From: from, To: to, ViaSendsOnly: !l.ports})
	}
	slices.SortFunc(out, func(a, b Edge) int { return cmp.Compare(a.To, b.To) })
	return out
}

// invalidate drops the cached rows of every source that reaches id, and id's
// own row.
func (g *Graph) invalidate(id ID) {
	for src, row := range g.rows {
		if src == id {
			delete(g.rows, src)
			continue
		}
		if _, ok := row[id]; ok {
			delete(g.rows, src)
		}
	}
}

func (g *Graph) row(src ID) map[ID]reach {
	if r, ok := g.rows[src]; ok {
		return r
	}
	r := make(map[ID]reach)
	g.walk(src, r, false)
	g.walk(src, r, true)
	g.rows[src] = r
	return r
}

// walk marks everything reachable from src, following only port edges if
// portsOnly is set.
func (g *Graph) walk(src ID, r map[ID]reach, portsOnly bool) {
	seen := map[ID]bool{src: true}
	queue := []ID{src}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for to, l := range g.out[id] {
			if portsOnly && !l.ports {
				continue
			}
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
			if to == src {
				continue
			}
			x := r[to]
			if portsOnly {
				x.ports = true
			} else {
				x.any = true
			}
			r[to] = x
		}
	}
}

// Feeds reports whether a feeds b directly or indirectly, and whether it
// does so only through paths involving sends.
func (g *Graph) Feeds(a, b ID) (feeds, viaSendsOnly bool) {
	if a == b || !g.Has(a) || !g.Has(b) {
		return false, false
	}
	x := g.row(a)[b]
	return x.any, x.any && !x.ports
}

// DirectFeeds reports whether a has a direct edge to b.
func (g *Graph) DirectFeeds(a, b ID) (feeds, viaSendsOnly bool) {
	l, ok := g.out[a][b]
	return ok, ok && !l.ports
}

// FedBy returns every route feeding b, in ascending order.
func (g *Graph) FedBy(b ID) []ID {
	var ids []ID
	for _, a := range g.Nodes() {
		if ok, _ := g.Feeds(a, b); ok {
			ids = append(ids, a)
		}
	}
	return ids
}

// Downstream returns every route a feeds, in ascending order.
func (g *Graph) Downstream(a ID) []ID {
	var ids []ID
	for b, x := range g.row(a) {
		if x.any {
			ids = append(ids, b)
		}
	}
	slices.Sort(ids)
	return ids
}

// Relation returns the full transitive relation.
func (g *Graph) Relation() Relation {
	rel := make(Relation)
	for a := range g.nodes {
		for b, x := range g.row(a) {
			if x.any {
				rel[Pair{a, b}] = !x.ports
			}
		}
	}
	return rel
}

// Order returns the routes in an order where every route comes after all
// routes feeding it directly. Ties are broken by ID. Routes on a cycle are
// appended in ID order and ErrCycle is returned with them.
func (g *Graph) Order() ([]ID, error) {
	indegree := make(map[ID]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] += 0
		for to := range g.out[id] {
			indegree[to]++
		}
	}

	var queue []ID
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	slices.Sort(queue)

	order := make([]ID, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		var ready []ID
		for to := range g.out[id] {
			indegree[to]--
			if indegree[to] == 0 {
				ready = append(ready, to)
			}
		}
		slices.Sort(ready)
		queue = append(queue, ready...)
	}

	if len(order) == len(g.nodes) {
		return order, nil
	}

	var cyclic []ID
	for id, d := range indegree {
		if d > 0 {
			cyclic = append(cyclic, id)
		}
	}
	slices.Sort(cyclic)
	return append(order, cyclic...), fmt.Errorf("%w: %v", ErrCycle, cyclic)
}
