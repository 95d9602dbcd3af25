package shift_stats

import (
	"fmt"
	"sort"
	"strings"
)

// Level is the specificity of an environment key.
type Level int

const (
	// LevelElement is element and hybridization only.
	LevelElement Level = iota
	// LevelHydrogens adds the attached hydrogen count.
	LevelHydrogens
	// LevelNeighbors adds the sorted first-shell neighbor descriptors.
	LevelNeighbors
)

func (l Level) String() string {
	switch l {
	case LevelNeighbors:
		return "neighbors"
	case LevelHydrogens:
		return "hydrogens"
	default:
		return "element"
	}
}

// Environment describes the local surroundings of one heavy atom.
type Environment struct {
	Element       string
	Hybridization string
	Hydrogens     int
	Neighbors     []string // sorted descriptors, hydrogens excluded
}

// Key renders the environment at the given level, e.g.
// "C;sp3;H2;C:sp3,O:sp3", "C;sp3;H2" or "C;sp3".
func (e Environment) Key(level Level) string {
	switch level {
	case LevelNeighbors:
		return fmt.Sprintf("%s;%s;H%d;%s", e.Element, e.Hybridization, e.Hydrogens, strings.Join(e.Neighbors, ","))
	case LevelHydrogens:
		return fmt.Sprintf("%s;%s;H%d", e.Element, e.Hybridization, e.Hydrogens)
	default:
		return e.Element + ";" + e.Hybridization
	}
}

// Keys returns the keys from most to least specific.
func (e Environment) Keys() []string {
	return []string{e.Key(LevelNeighbors), e.Key(LevelHydrogens), e.Key(LevelElement)}
}

// EnvironmentOf computes the environment of atom i.
func (m *Molecule) EnvironmentOf(i int) Environment {
	neighbors := m.Neighbors(i)
	desc := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		desc = append(desc, neighborDescriptor(n, m.Hybridization(n.Atom.Index)))
	}
	sort.Strings(desc)
	return Environment{
		Element:       m.Atoms[i].Symbol,
		Hybridization: m.Hybridization(i),
		Hydrogens:     m.HydrogenCount(i),
		Neighbors:     desc,
	}
}

// neighborDescriptor writes "[bond]symbol:hyb" with "=" and "#" marking
// double and triple bonds and a lowercase symbol marking aromatic atoms.
func neighborDescriptor(n Neighbor, hyb string) string {
	var prefix string
	switch n.Order {
	case BondDouble:
		prefix = "="
	case BondTriple:
		prefix = "#"
	}
	sym := n.Atom.Symbol
	if n.Atom.Aromatic {
		sym = strings.ToLower(sym)
	}
	return prefix + sym + ":" + hyb
}

// CanonicalKey reorders the neighbor list of a level-2 key so that keys
// written by hand match computed ones. Shorter keys are returned unchanged.
func CanonicalKey(key string) string {
	parts := strings.SplitN(strings.TrimSpace(key), ";", 4)
	if len(parts) < 4 || parts[3] == "" {
		return strings.Join(parts, ";")
	}
	neighbors := strings.Split(parts[3], ",")
	for i := range neighbors {
		neighbors[i] = strings.TrimSpace(neighbors[i])
	}
	sort.Strings(neighbors)
	parts[3] = strings.Join(neighbors, ",")
	return strings.Join(parts, ";")
}
