package workflow

import "sort"

const (
	colorWhite = iota
	colorGray
	colorBlack
)

// connectionCycle reports whether the connection-only subgraph contains a
// cycle, returning one witness path source..source when it does. Backward
// jumps are ignored. Traversal order is deterministic: items in insertion
// order, successors sorted by name.
func (p *Project) connectionCycle() ([]string, bool) {
	succ := make(map[string][]string, len(p.items))
	for k := range p.connections {
		succ[k.source] = append(succ[k.source], k.target)
	}
	for _, s := range succ {
		sort.Strings(s)
	}

	color := make(map[string]int, len(p.items))
	stack := make([]string, 0, len(p.items))
	var cycle []string

	var visit func(string) bool
	visit = func(n string) bool {
		color[n] = colorGray
		stack = append(stack, n)
		for _, s := range succ[n] {
			switch color[s] {
			case colorWhite:
				if visit(s) {
					return true
				}
			case colorGray:
				for i, v := range stack {
					if v == s {
						cycle = append(cycle, stack[i:]...)
						cycle = append(cycle, s)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = colorBlack
		return false
	}

	for _, name := range p.order {
		if color[name] == colorWhite {
			if visit(name) {
				return cycle, true
			}
		}
	}
	return nil, false
}
