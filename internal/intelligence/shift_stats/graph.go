// Package shift_stats predicts ¹H and ¹³C chemical shifts offline from a
// table of per-environment shift statistics. A structure is parsed into a
// molecular graph, every relevant atom is described by a hierarchical
// environment key, and the most specific key present in the dataset wins.
package shift_stats

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/turtacn/ShiftScope/pkg/errors"
)

// BondOrder is the multiplicity of a bond. Aromatic bonds count as 1 when
// hydrogens are derived.
type BondOrder int

const (
	BondSingle BondOrder = iota + 1
	BondDouble
	BondTriple
	BondAromatic
)

// Atom is a heavy atom of a parsed structure.
type Atom struct {
	Index    int
	Symbol   string // capitalized element symbol
	Aromatic bool
	Charge   int
	Isotope  int
	// Bracket atoms carry their hydrogen count explicitly.
	Bracket   bool
	ExplicitH int
}

// Bond connects two atoms by index.
type Bond struct {
	From, To int
	Order    BondOrder
}

// Molecule is an undirected heavy-atom graph with derived hydrogen counts.
type Molecule struct {
	Atoms []Atom
	Bonds []Bond

	adjacency [][]int // bond indexes per atom
	hydrogens []int
}

// Neighbor is an atom adjacent to another together with the bond joining them.
type Neighbor struct {
	Atom  *Atom
	Order BondOrder
}

// Neighbors returns the heavy-atom neighbors of atom i.
func (m *Molecule) Neighbors(i int) []Neighbor {
	out := make([]Neighbor, 0, len(m.adjacency[i]))
	for _, bi := range m.adjacency[i] {
		b := m.Bonds[bi]
		other := b.To
		if other == i {
			other = b.From
		}
		out = append(out, Neighbor{Atom: &m.Atoms[other], Order: b.Order})
	}
	return out
}

// HydrogenCount returns the number of hydrogens attached to atom i.
func (m *Molecule) HydrogenCount(i int) int { return m.hydrogens[i] }

// Hybridization returns "ar", "sp", "sp2" or "sp3" for atom i.
func (m *Molecule) Hybridization(i int) string {
	if m.Atoms[i].Aromatic {
		return "ar"
	}
	doubles := 0
	for _, bi := range m.adjacency[i] {
		switch m.Bonds[bi].Order {
		case BondTriple:
			return "sp"
		case BondDouble:
			doubles++
		}
	}
	switch {
	case doubles >= 2:
		return "sp"
	case doubles == 1:
		return "sp2"
	}
	return "sp3"
}

// ─────────────────────────────────────────────────────────────────────────────
// Parser
// ─────────────────────────────────────────────────────────────────────────────

var defaultValences = map[string][]int{
	"B": {3}, "C": {4}, "N": {3, 5}, "O": {2}, "P": {3, 5}, "S": {2, 4, 6},
	"F": {1}, "Cl": {1}, "Br": {1}, "I": {1},
}

var bracketTwoLetter = map[string]bool{
	"Cl": true, "Br": true, "Si": true, "Se": true, "Na": true, "Li": true, "Mg": true,
	"Al": true, "Ca": true, "Fe": true, "Cu": true, "Zn": true, "Sn": true, "Pt": true,
	"Pd": true, "As": true, "Ge": true, "Te": true, "Ag": true, "Au": true, "Ni": true,
	"Co": true, "Mn": true, "Hg": true, "Pb": true, "Ti": true, "Cr": true,
}

type ringOpening struct {
	atom  int
	order BondOrder
	set   bool
}

type parser struct {
	src     string
	pos     int
	mol     *Molecule
	prev    int
	branch  []int
	rings   map[int]ringOpening
	bond    BondOrder
	bondSet bool
}

func parseError(format string, args ...interface{}) error {
	return errors.New(errors.ErrCodeInvalidSMILES, fmt.Sprintf(format, args...))
}

// ParseSMILES builds a Molecule from a single-fragment SMILES string.
// Stereo markers are accepted and ignored.
func ParseSMILES(smiles string) (*Molecule, error) {
	smiles = strings.TrimSpace(smiles)
	if smiles == "" {
		return nil, parseError("empty SMILES")
	}
	p := &parser{src: smiles, mol: &Molecule{}, prev: -1, rings: make(map[int]ringOpening)}
	if err := p.run(); err != nil {
		return nil, err
	}
	p.mol.deriveHydrogens()
	return p.mol, nil
}

func (p *parser) run() error {
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		switch {
		case ch == '(':
			if p.prev < 0 {
				return parseError("branch without a preceding atom at %d", p.pos)
			}
			p.branch = append(p.branch, p.prev)
			p.pos++
		case ch == ')':
			if len(p.branch) == 0 {
				return parseError("unbalanced parentheses")
			}
			p.prev = p.branch[len(p.branch)-1]
			p.branch = p.branch[:len(p.branch)-1]
			p.pos++
		case ch == '-' || ch == '/' || ch == '\\':
			p.setBond(BondSingle)
		case ch == '=':
			p.setBond(BondDouble)
		case ch == '#':
			p.setBond(BondTriple)
		case ch == ':':
			p.setBond(BondAromatic)
		case ch == '.':
			return parseError("SMILES has more than one fragment")
		case ch == '%' || (ch >= '0' && ch <= '9'):
			if err := p.ringClosure(); err != nil {
				return err
			}
		case ch == '[':
			if err := p.bracketAtom(); err != nil {
				return err
			}
		default:
			if err := p.organicAtom(); err != nil {
				return err
			}
		}
	}
	if len(p.branch) > 0 {
		return parseError("unbalanced parentheses")
	}
	if len(p.rings) > 0 {
		return parseError("unpaired ring closure")
	}
	if len(p.mol.Atoms) == 0 {
		return parseError("no atoms")
	}
	return nil
}

func (p *parser) setBond(o BondOrder) {
	p.bond, p.bondSet = o, true
	p.pos++
}

func (p *parser) takeBond() (BondOrder, bool) {
	o, set := p.bond, p.bondSet
	p.bond, p.bondSet = 0, false
	return o, set
}

func (p *parser) ringClosure() error {
	if p.prev < 0 {
		return parseError("ring closure without a preceding atom at %d", p.pos)
	}
	var num int
	if p.src[p.pos] == '%' {
		if p.pos+2 >= len(p.src) {
			return parseError("truncated ring closure at %d", p.pos)
		}
		n, err := strconv.Atoi(p.src[p.pos+1 : p.pos+3])
		if err != nil {
			return parseError("invalid ring closure at %d", p.pos)
		}
		num = n
		p.pos += 3
	} else {
		num = int(p.src[p.pos] - '0')
		p.pos++
	}

	order, set := p.takeBond()
	open, ok := p.rings[num]
	if !ok {
		p.rings[num] = ringOpening{atom: p.prev, order: order, set: set}
		return nil
	}
	delete(p.rings, num)
	if !set && open.set {
		order, set = open.order, true
	}
	if open.atom == p.prev {
		return parseError("ring closure %d bonds an atom to itself", num)
	}
	p.mol.addBond(open.atom, p.prev, order, set)
	return nil
}

func (p *parser) organicAtom() error {
	rest := p.src[p.pos:]
	var sym string
	aromatic := false
	switch {
	case strings.HasPrefix(rest, "Cl"), strings.HasPrefix(rest, "Br"):
		sym = rest[:2]
	case strings.ContainsRune("BCNOPSFI", rune(rest[0])):
		sym = rest[:1]
	case strings.ContainsRune("bcnops", rune(rest[0])):
		sym = strings.ToUpper(rest[:1])
		aromatic = true
	default:
		return parseError("unknown atom %q outside brackets", rest[:1])
	}
	p.pos += len(sym)
	p.attach(Atom{Symbol: sym, Aromatic: aromatic, ExplicitH: -1})
	return nil
}

func (p *parser) bracketAtom() error {
	end := strings.IndexByte(p.src[p.pos:], ']')
	if end < 0 {
		return parseError("unbalanced brackets")
	}
	body := p.src[p.pos+1 : p.pos+end]
	p.pos += end + 1

	a := Atom{Bracket: true}
	i := 0
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		i++
	}
	if i > 0 {
		a.Isotope, _ = strconv.Atoi(body[:i])
	}
	if i >= len(body) {
		return parseError("bracket atom %q has no element", body)
	}

	switch c := body[i]; {
	case c >= 'A' && c <= 'Z':
		if i+1 < len(body) && bracketTwoLetter[body[i:i+2]] {
			a.Symbol = body[i : i+2]
			i += 2
		} else {
			a.Symbol = body[i : i+1]
			i++
		}
	case c >= 'a' && c <= 'z':
		a.Aromatic = true
		if i+1 < len(body) && (body[i:i+2] == "se" || body[i:i+2] == "as") {
			a.Symbol = strings.ToUpper(body[i:i+1]) + body[i+1:i+2]
			i += 2
		} else {
			a.Symbol = strings.ToUpper(body[i : i+1])
			i++
		}
	default:
		return parseError("bracket atom %q has no element", body)
	}

	for i < len(body) && body[i] == '@' {
		i++
	}
	if i < len(body) && body[i] == 'H' {
		i++
		a.ExplicitH = 1
		j := i
		for j < len(body) && body[j] >= '0' && body[j] <= '9' {
			j++
		}
		if j > i {
			a.ExplicitH, _ = strconv.Atoi(body[i:j])
			i = j
		}
	}
	for i < len(body) && (body[i] == '+' || body[i] == '-') {
		sign := 1
		if body[i] == '-' {
			sign = -1
		}
		i++
		j := i
		for j < len(body) && body[j] >= '0' && body[j] <= '9' {
			j++
		}
		if j > i {
			n, _ := strconv.Atoi(body[i:j])
			a.Charge += sign * n
			i = j
		} else {
			a.Charge += sign
		}
	}
	// Atom-map numbers are ignored.
	p.attach(a)
	return nil
}

func (p *parser) attach(a Atom) {
	a.Index = len(p.mol.Atoms)
	p.mol.Atoms = append(p.mol.Atoms, a)
	p.mol.adjacency = append(p.mol.adjacency, nil)
	order, set := p.takeBond()
	if p.prev >= 0 {
		p.mol.addBond(p.prev, a.Index, order, set)
	}
	p.prev = a.Index
}

func (m *Molecule) addBond(from, to int, order BondOrder, explicit bool) {
	if !explicit {
		order = BondSingle
		if m.Atoms[from].Aromatic && m.Atoms[to].Aromatic {
			order = BondAromatic
		}
	}
	m.Bonds = append(m.Bonds, Bond{From: from, To: to, Order: order})
	bi := len(m.Bonds) - 1
	m.adjacency[from] = append(m.adjacency[from], bi)
	m.adjacency[to] = append(m.adjacency[to], bi)
}

// deriveHydrogens fills in implicit hydrogens for organic-subset atoms using
// the lowest standard valence that covers the bond-order sum.
func (m *Molecule) deriveHydrogens() {
	m.hydrogens = make([]int, len(m.Atoms))
	for i, a := range m.Atoms {
		if a.Bracket {
			m.hydrogens[i] = a.ExplicitH
			if m.hydrogens[i] < 0 {
				m.hydrogens[i] = 0
			}
			continue
		}
		sum := 0
		for _, bi := range m.adjacency[i] {
			switch o := m.Bonds[bi].Order; o {
			case BondAromatic:
				sum++
			default:
				sum += int(o)
			}
		}
		if a.Aromatic {
			sum++
		}
		valences := defaultValences[a.Symbol]
		h := 0
		for _, v := range valences {
			if v >= sum {
				h = v - sum
				break
			}
		}
		m.hydrogens[i] = h
	}
}
