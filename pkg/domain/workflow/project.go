package workflow

import "sort"

type edgeKey struct {
	source string
	target string
}

type specKey struct {
	itemType string
	name     string
}

// Project owns the items, edges, jumps and specifications of one workflow.
//
// All mutation goes through the operations below. A Project is built by a
// single goroutine; once handed to a run it is only read.
type Project struct {
	Name string

	items map[string]*Item
	// order records item insertion order; admission tie-breaking follows it.
	order []string

	connections map[edgeKey]*Connection
	jumps       map[edgeKey]*BackwardJump
	specs       map[specKey]*Specification
}

// NewProject creates an empty project graph.
func NewProject(name string) *Project {
	return &Project{
		Name:        name,
		items:       make(map[string]*Item),
		connections: make(map[edgeKey]*Connection),
		jumps:       make(map[edgeKey]*BackwardJump),
		specs:       make(map[specKey]*Specification),
	}
}

// AddItem registers a new item under its name.
func (p *Project) AddItem(item *Item) error {
	if item == nil || item.Name == "" {
		return graphErrf(ErrInvalidDefinition, "item name is required")
	}
	if _, exists := p.items[item.Name]; exists {
		return graphErrf(ErrDuplicateName, "item %q", item.Name)
	}
	p.items[item.Name] = item
	p.order = append(p.order, item.Name)
	return nil
}

// Item returns the named item.
func (p *Project) Item(name string) (*Item, error) {
	it, ok := p.items[name]
	if !ok {
		return nil, graphErrf(ErrNotFound, "item %q", name)
	}
	return it, nil
}

// RenameItem moves an item to a new name, re-keying every incident Connection
// and BackwardJump in the same operation. Nothing changes on failure.
func (p *Project) RenameItem(oldName, newName string) error {
	it, ok := p.items[oldName]
	if !ok {
		return graphErrf(ErrNotFound, "item %q", oldName)
	}
	if newName == "" {
		return graphErrf(ErrInvalidDefinition, "item name is required")
	}
	if newName == oldName {
		return nil
	}
	if _, exists := p.items[newName]; exists {
		return graphErrf(ErrDuplicateName, "item %q", newName)
	}

	delete(p.items, oldName)
	it.Name = newName
	p.items[newName] = it
	for i, n := range p.order {
		if n == oldName {
			p.order[i] = newName
			break
		}
	}
	rekeyConnections(p.connections, oldName, newName)
	rekeyJumps(p.jumps, oldName, newName)
	return nil
}

// RemoveItem deletes an item and every edge touching it.
func (p *Project) RemoveItem(name string) error {
	if _, ok := p.items[name]; !ok {
		return graphErrf(ErrNotFound, "item %q", name)
	}
	delete(p.items, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	for k := range p.connections {
		if k.source == name || k.target == name {
			delete(p.connections, k)
		}
	}
	for k := range p.jumps {
		if k.source == name || k.target == name {
			delete(p.jumps, k)
		}
	}
	return nil
}

// AddConnection inserts a dependency edge from source to target.
//
// The edge is inserted speculatively and the connection-only subgraph is
// re-checked for acyclicity; on violation the edge is removed again and
// ErrCycle returned, so the project is never observably cyclic.
func (p *Project) AddConnection(source, target string, conn *Connection) error {
	if err := p.checkEndpoints(source, target); err != nil {
		return err
	}
	key := edgeKey{source: source, target: target}
	if _, exists := p.connections[key]; exists {
		return graphErrf(ErrDuplicateEdge, "connection %q -> %q", source, target)
	}
	if conn == nil {
		conn = &Connection{}
	}
	conn.Source, conn.Target = source, target
	p.connections[key] = conn
	if path, found := p.connectionCycle(); found {
		delete(p.connections, key)
		return cycleError(path)
	}
	return nil
}

// Connection returns the edge for the ordered pair.
func (p *Project) Connection(source, target string) (*Connection, error) {
	c, ok := p.connections[edgeKey{source: source, target: target}]
	if !ok {
		return nil, graphErrf(ErrNotFound, "connection %q -> %q", source, target)
	}
	return c, nil
}

// RemoveConnection deletes the edge for the ordered pair.
func (p *Project) RemoveConnection(source, target string) error {
	key := edgeKey{source: source, target: target}
	if _, ok := p.connections[key]; !ok {
		return graphErrf(ErrNotFound, "connection %q -> %q", source, target)
	}
	delete(p.connections, key)
	return nil
}

// AddBackwardJump inserts a jump edge from source to target. Jumps follow the
// same endpoint, self-loop and duplicate rules as connections but are exempt
// from the acyclicity check.
func (p *Project) AddBackwardJump(source, target string, jump *BackwardJump) error {
	if err := p.checkEndpoints(source, target); err != nil {
		return err
	}
	key := edgeKey{source: source, target: target}
	if _, exists := p.jumps[key]; exists {
		return graphErrf(ErrDuplicateEdge, "backward jump %q -> %q", source, target)
	}
	if jump == nil {
		jump = &BackwardJump{}
	}
	jump.Source, jump.Target = source, target
	p.jumps[key] = jump
	return nil
}

// BackwardJump returns the jump for the ordered pair.
func (p *Project) BackwardJump(source, target string) (*BackwardJump, error) {
	j, ok := p.jumps[edgeKey{source: source, target: target}]
	if !ok {
		return nil, graphErrf(ErrNotFound, "backward jump %q -> %q", source, target)
	}
	return j, nil
}

// RemoveBackwardJump deletes the jump for the ordered pair.
func (p *Project) RemoveBackwardJump(source, target string) error {
	key := edgeKey{source: source, target: target}
	if _, ok := p.jumps[key]; !ok {
		return graphErrf(ErrNotFound, "backward jump %q -> %q", source, target)
	}
	delete(p.jumps, key)
	return nil
}

// AddItemSpecification registers a specification under its (item type, name)
// key.
func (p *Project) AddItemSpecification(spec *Specification) error {
	if spec == nil || spec.ItemType == "" || spec.Name == "" {
		return graphErrf(ErrInvalidDefinition, "specification requires item type and name")
	}
	key := specKey{itemType: spec.ItemType, name: spec.Name}
	if _, exists := p.specs[key]; exists {
		return graphErrf(ErrDuplicateName, "specification %q/%q", spec.ItemType, spec.Name)
	}
	p.specs[key] = spec
	return nil
}

// ItemSpecification returns the specification for the key.
func (p *Project) ItemSpecification(itemType, name string) (*Specification, error) {
	s, ok := p.specs[specKey{itemType: itemType, name: name}]
	if !ok {
		return nil, graphErrf(ErrNotFound, "specification %q/%q", itemType, name)
	}
	return s, nil
}

// RemoveItemSpecification deletes the specification for the key.
func (p *Project) RemoveItemSpecification(itemType, name string) error {
	key := specKey{itemType: itemType, name: name}
	if _, ok := p.specs[key]; !ok {
		return graphErrf(ErrNotFound, "specification %q/%q", itemType, name)
	}
	delete(p.specs, key)
	return nil
}

// Items returns the items in insertion order.
func (p *Project) Items() []*Item {
	out := make([]*Item, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.items[name])
	}
	return out
}

// ItemNames returns the item names in insertion order.
func (p *Project) ItemNames() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Connections returns every dependency edge, ordered by (source, target).
func (p *Project) Connections() []*Connection {
	keys := sortedEdgeKeys(p.connections)
	out := make([]*Connection, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.connections[k])
	}
	return out
}

// BackwardJumps returns every jump edge, ordered by (source, target).
func (p *Project) BackwardJumps() []*BackwardJump {
	keys := sortedEdgeKeys(p.jumps)
	out := make([]*BackwardJump, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.jumps[k])
	}
	return out
}

// JumpsFrom returns the backward jumps whose source is the named item,
// ordered by target.
func (p *Project) JumpsFrom(source string) []*BackwardJump {
	var out []*BackwardJump
	for k, j := range p.jumps {
		if k.source == source {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Predecessors returns the names of items with a Connection into name, sorted.
func (p *Project) Predecessors(name string) []string {
	var out []string
	for k := range p.connections {
		if k.target == name {
			out = append(out, k.source)
		}
	}
	sort.Strings(out)
	return out
}

// Successors returns the names of items name connects into, sorted.
func (p *Project) Successors(name string) []string {
	var out []string
	for k := range p.connections {
		if k.source == name {
			out = append(out, k.target)
		}
	}
	sort.Strings(out)
	return out
}

// ItemsOnPath returns every item lying on some Connection path from one item
// to another, both endpoints inclusive, in insertion order. Empty when no
// path exists. Jump edges are not followed.
func (p *Project) ItemsOnPath(from, to string) []string {
	forward := p.reach(from, func(n string) []string { return p.successorNames(n) })
	backward := p.reach(to, func(n string) []string { return p.predecessorNames(n) })
	var out []string
	for _, name := range p.order {
		if forward[name] && backward[name] {
			out = append(out, name)
		}
	}
	return out
}

func (p *Project) checkEndpoints(source, target string) error {
	if _, ok := p.items[source]; !ok {
		return graphErrf(ErrNotFound, "item %q", source)
	}
	if _, ok := p.items[target]; !ok {
		return graphErrf(ErrNotFound, "item %q", target)
	}
	if source == target {
		return graphErrf(ErrSelfLoop, "%q -> %q", source, target)
	}
	return nil
}

func (p *Project) successorNames(name string) []string {
	var out []string
	for k := range p.connections {
		if k.source == name {
			out = append(out, k.target)
		}
	}
	return out
}

func (p *Project) predecessorNames(name string) []string {
	var out []string
	for k := range p.connections {
		if k.target == name {
			out = append(out, k.source)
		}
	}
	return out
}

func (p *Project) reach(start string, next func(string) []string) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, s := range next(n) {
			if !seen[s] {
				seen[s] = true
				queue = append(queue, s)
			}
		}
	}
	return seen
}

func rekeyConnections(edges map[edgeKey]*Connection, oldName, newName string) {
	var moved []edgeKey
	for k := range edges {
		if k.source == oldName || k.target == oldName {
			moved = append(moved, k)
		}
	}
	for _, k := range moved {
		c := edges[k]
		delete(edges, k)
		nk := k
		if nk.source == oldName {
			nk.source = newName
		}
		if nk.target == oldName {
			nk.target = newName
		}
		c.Source, c.Target = nk.source, nk.target
		edges[nk] = c
	}
}

func rekeyJumps(edges map[edgeKey]*BackwardJump, oldName, newName string) {
	var moved []edgeKey
	for k := range edges {
		if k.source == oldName || k.target == oldName {
			moved = append(moved, k)
		}
	}
	for _, k := range moved {
		j := edges[k]
		delete(edges, k)
		nk := k
		if nk.source == oldName {
			nk.source = newName
		}
		if nk.target == oldName {
			nk.target = newName
		}
		j.Source, j.Target = nk.source, nk.target
		edges[nk] = j
	}
}

func sortedEdgeKeys[E any](edges map[edgeKey]E) []edgeKey {
	keys := make([]edgeKey, 0, len(edges))
	for k := range edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].source != keys[j].source {
			return keys[i].source < keys[j].source
		}
		return keys[i].target < keys[j].target
	})
	return keys
}
