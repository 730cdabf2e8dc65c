package matchmaker

import "sort"

type groupKind uint8

const (
	roomGroup groupKind = iota
	sessionGroup
)

// groups is the membership relation between clients and broadcast groups.
// Room-code groups and session groups share one namespace; a name keeps the
// kind it was created with until its last member leaves.
type groups struct {
	members  map[string]map[string]struct{} // group -> client ids
	kinds    map[string]groupKind
	byClient map[string]map[string]struct{} // client id -> groups
}

func newGroups() *groups {
	return &groups{
		members:  make(map[string]map[string]struct{}),
		kinds:    make(map[string]groupKind),
		byClient: make(map[string]map[string]struct{}),
	}
}

// join adds id to name. It refuses, returning false, when name already
// exists with a different kind.
func (g *groups) join(name string, kind groupKind, id string) bool {
	if k, ok := g.kinds[name]; ok && k != kind {
		return false
	}
	if g.members[name] == nil {
		g.members[name] = make(map[string]struct{})
		g.kinds[name] = kind
	}
	g.members[name][id] = struct{}{}
	if g.byClient[id] == nil {
		g.byClient[id] = make(map[string]struct{})
	}
	g.byClient[id][name] = struct{}{}
	return true
}

func (g *groups) exists(name string) bool {
	_, ok := g.members[name]
	return ok
}

func (g *groups) kind(name string) (groupKind, bool) {
	k, ok := g.kinds[name]
	return k, ok
}

func (g *groups) has(name, id string) bool {
	_, ok := g.members[name][id]
	return ok
}

// others lists the members of name except id, sorted.
func (g *groups) others(name, id string) []string {
	out := make([]string, 0, len(g.members[name]))
	for m := range g.members[name] {
		if m != id {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// of lists the groups of the given kind that id belongs to, sorted.
func (g *groups) of(id string, kind groupKind) []string {
	var out []string
	for name := range g.byClient[id] {
		if g.kinds[name] == kind {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// leaveAll removes id from every group and returns the groups that became
// empty, which no longer exist afterwards.
func (g *groups) leaveAll(id string) []string {
	var emptied []string
	for name := range g.byClient[id] {
		delete(g.members[name], id)
		if len(g.members[name]) == 0 {
			delete(g.members, name)
			delete(g.kinds, name)
			emptied = append(emptied, name)
		}
	}
	delete(g.byClient, id)
	sort.Strings(emptied)
	return emptied
}

func (g *groups) count(kind groupKind) int {
	n := 0
	for _, k := range g.kinds {
		if k == kind {
			n++
		}
	}
	return n
}
