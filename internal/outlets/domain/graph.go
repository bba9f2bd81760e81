package outlets

import "sort"

// NodeKind tags a graph node.
type NodeKind uint8

const (
	// NodeSimple is a plain physical outlet.
	NodeSimple NodeKind = iota
	// NodeVirtual is an outlet that addresses its own compound grouping.
	NodeVirtual
)

// OutletSet is the set of outlets a graph may reference, tagged by kind.
type OutletSet map[LocationID]NodeKind

// NewOutletSet builds a set from registry outlets.
func NewOutletSet(list []Outlet) OutletSet {
	set := make(OutletSet, len(list))
	for _, o := range list {
		kind := NodeSimple
		if o.IsCompound() {
			kind = NodeVirtual
		}
		set[o.ID] = kind
	}
	return set
}

// OutletSetOf builds a set of simple outlets from ids.
func OutletSetOf(ids ...LocationID) OutletSet {
	set := make(OutletSet, len(ids))
	for _, id := range ids {
		set[id] = NodeSimple
	}
	return set
}

// Contains reports set membership.
func (s OutletSet) Contains(id LocationID) bool {
	_, ok := s[id]
	return ok
}

// Edge is a directed upstream to downstream link.
type Edge struct {
	From LocationID
	To   LocationID
}

// Node is one vertex of a routing graph.
type Node struct {
	ID         LocationID
	Kind       NodeKind
	Downstream []LocationID
	declared   bool
}

// Graph is a validated routing DAG. It is immutable once built.
type Graph struct {
	nodes    map[LocationID]*Node
	declared []LocationID
	order    []LocationID
	upstream map[LocationID][]LocationID
}

// BuildGraph validates records against the known outlets and builds the DAG.
//
// Failures are reported in a fixed order: malformed ids, duplicate record
// ids, references missing from known, then cycles.
func BuildGraph(records []VirtualOutletRecord, known OutletSet) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[LocationID]*Node, len(records)),
		upstream: make(map[LocationID][]LocationID),
	}

	var duplicates []LocationID
	for _, rec := range records {
		if err := rec.OutletID.Validate(); err != nil {
			return nil, err
		}
		node := g.touch(rec.OutletID, known)
		if node.declared {
			duplicates = append(duplicates, rec.OutletID)
			continue
		}
		node.declared = true
		g.declared = append(g.declared, rec.OutletID)

		seen := make(map[LocationID]struct{}, len(rec.DownstreamOutletIDs))
		for _, down := range rec.DownstreamOutletIDs {
			if err := down.Validate(); err != nil {
				return nil, err
			}
			if _, dup := seen[down]; dup {
				continue
			}
			seen[down] = struct{}{}
			g.touch(down, known)
			node.Downstream = append(node.Downstream, down)
			g.upstream[down] = append(g.upstream[down], rec.OutletID)
		}
	}
	if len(duplicates) > 0 {
		return nil, newGraphError(ErrDuplicateNode, duplicates...)
	}

	var missing []LocationID
	for _, id := range g.order {
		if !known.Contains(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, newGraphError(ErrDanglingReference, missing...)
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, newGraphError(ErrCycleDetected, cycle...)
	}
	return g, nil
}

func (g *Graph) touch(id LocationID, known OutletSet) *Node {
	node, ok := g.nodes[id]
	if !ok {
		node = &Node{ID: id, Kind: known[id]}
		g.nodes[id] = node
		g.order = append(g.order, id)
	}
	return node
}

// findCycle runs a colored DFS in declaration order and returns the first
// cycle found as a closed path, or nil.
func (g *Graph) findCycle() []LocationID {
	const (
		white = iota
		grey
		black
	)
	color := make(map[LocationID]int, len(g.nodes))
	path := make([]LocationID, 0, len(g.nodes))

	var visit func(id LocationID) []LocationID
	visit = func(id LocationID) []LocationID {
		color[id] = grey
		path = append(path, id)
		for _, next := range g.nodes[id].Downstream {
			switch color[next] {
			case grey:
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				cycle := append([]LocationID(nil), path[start:]...)
				return append(cycle, next)
			case white:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, id := range g.order {
		if color[id] == white {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Serialize returns the graph as records in the order they were declared.
// BuildGraph(Serialize(g), known) rebuilds an equal graph.
func Serialize(g *Graph) []VirtualOutletRecord {
	if g == nil {
		return nil
	}
	out := make([]VirtualOutletRecord, 0, len(g.declared))
	for _, id := range g.declared {
		node := g.nodes[id]
		out = append(out, VirtualOutletRecord{
			OutletID:            id,
			DownstreamOutletIDs: append([]LocationID(nil), node.Downstream...),
		})
	}
	return out
}

// Records is Serialize as a method.
func (g *Graph) Records() []VirtualOutletRecord {
	return Serialize(g)
}

// Node returns a node by id.
func (g *Graph) Node(id LocationID) (Node, bool) {
	node, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	cp := *node
	cp.Downstream = append([]LocationID(nil), node.Downstream...)
	return cp, true
}

// Nodes returns every node id in first-seen order.
func (g *Graph) Nodes() []LocationID {
	return append([]LocationID(nil), g.order...)
}

// Edges returns every edge, grouped by upstream node in first-seen order.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, id := range g.order {
		for _, down := range g.nodes[id].Downstream {
			edges = append(edges, Edge{From: id, To: down})
		}
	}
	return edges
}

// Downstream returns the immediate downstream ids of a node.
func (g *Graph) Downstream(id LocationID) []LocationID {
	node, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return append([]LocationID(nil), node.Downstream...)
}

// Upstream returns the immediate upstream ids of a node.
func (g *Graph) Upstream(id LocationID) []LocationID {
	return append([]LocationID(nil), g.upstream[id]...)
}

// Roots returns nodes with no upstream edges.
func (g *Graph) Roots() []LocationID {
	var roots []LocationID
	for _, id := range g.order {
		if len(g.upstream[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Terminals returns nodes with no downstream edges.
func (g *Graph) Terminals() []LocationID {
	var terminals []LocationID
	for _, id := range g.order {
		if len(g.nodes[id].Downstream) == 0 {
			terminals = append(terminals, id)
		}
	}
	return terminals
}

// Equal reports whether both graphs have the same node and edge sets.
func (g *Graph) Equal(other *Graph) bool {
	if g == nil || other == nil {
		return g == other
	}
	if len(g.nodes) != len(other.nodes) {
		return false
	}
	for id, node := range g.nodes {
		peer, ok := other.nodes[id]
		if !ok {
			return false
		}
		if !sameSet(node.Downstream, peer.Downstream) {
			return false
		}
	}
	return true
}

func sameSet(a, b []LocationID) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]LocationID(nil), a...)
	y := append([]LocationID(nil), b...)
	sort.Slice(x, func(i, j int) bool { return x[i].Less(x[j]) })
	sort.Slice(y, func(i, j int) bool { return y[i].Less(y[j]) })
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
