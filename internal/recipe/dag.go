package recipe

import (
	"fmt"
	"strings"
)

// DetectCycle checks the step graph formed by depends_on edges for cycles
// using DFS with a coloring scheme (spec §4.1, §4.6: "Kahn/DFS"). On
// finding a cycle it returns the cycle as a slice of step names in the
// order they were visited, e.g. []string{"X", "Y", "Z", "X"}.
func DetectCycle(steps []*Step) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	byName := make(map[string]*Step, len(steps))
	for _, s := range steps {
		byName[s.Name] = s
	}

	color := make(map[string]int, len(steps))
	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		path = append(path, name)
		step := byName[name]
		if step != nil {
			for _, dep := range step.DependsOn {
				switch color[dep] {
				case white:
					if visit(dep) {
						return true
					}
				case gray:
					// Found the back-edge; extract the cycle from path.
					start := indexOf(path, dep)
					cycle = append(append([]string{}, path[start:]...), dep)
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return false
	}

	for _, s := range steps {
		if color[s.Name] == white {
			if visit(s.Name) {
				return cycle
			}
		}
	}
	return nil
}

func indexOf(ss []string, target string) int {
	for i, s := range ss {
		if s == target {
			return i
		}
	}
	return -1
}

// CycleMessage renders a cycle slice as spec §8's "X -> Y -> Z -> X" form.
func CycleMessage(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

// nameSet is a small helper for membership tests over step name sets.
type nameSet map[string]struct{}

func newNameSet(names []string) nameSet {
	s := make(nameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s nameSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

// ValidateNames checks that every depends_on reference in steps resolves to
// a step defined in the same recipe (spec §3.1 invariant).
func ValidateNames(steps []*Step) error {
	known := make(nameSet, len(steps))
	for _, s := range steps {
		known[s.Name] = struct{}{}
	}
	var unresolved []string
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if !known.has(dep) {
				unresolved = append(unresolved, fmt.Sprintf("%s depends_on %s", s.Name, dep))
			}
		}
	}
	if len(unresolved) > 0 {
		return fmt.Errorf("unresolved depends_on references: %s", strings.Join(unresolved, ", "))
	}
	return nil
}
