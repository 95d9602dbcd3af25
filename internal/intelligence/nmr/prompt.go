package nmr

import (
	"fmt"
	"strings"

	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

const systemPrompt = `You are an NMR spectroscopy assistant that predicts chemical shifts for small organic molecules.
Answer only with signal lines in the exact format requested. Do not add explanations, headings, tables, code fences or commentary.`

var references = map[types.NucleusKey]string{
	types.Nucleus1H:  "TMS",
	types.Nucleus13C: "TMS",
	types.Nucleus15N: "liquid NH3",
	types.Nucleus31P: "85% H3PO4",
	types.Nucleus19F: "CFCl3",
}

// BuildPrompt asks for one line per signal in the form
// "<mass><element>: δ <shift> ppm (<count><element>)", covering ¹H, ¹³C and
// whichever of ¹⁵N, ³¹P and ¹⁹F the structure contains.
func BuildPrompt(smiles string, catalog *Catalog) PromptContext {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	nuclei := NucleiFor(smiles)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Predict the NMR chemical shifts of the molecule with SMILES: %s\n\n", smiles)
	sb.WriteString("Write every signal on its own line using exactly this format:\n")
	for _, k := range nuclei {
		cfg := catalog.Config(k)
		fmt.Fprintf(&sb, "%s%s: δ X.XX ppm (n%s)\n", cfg.MassNumber, cfg.AtomSuffix, cfg.AtomSuffix)
	}
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Merge chemically equivalent atoms into one line and give their number as n.\n")
	sb.WriteString("- Use two decimals for 1H and one decimal for the other nuclei.\n")
	refs := make([]string, 0, len(nuclei))
	for _, k := range nuclei {
		refs = append(refs, fmt.Sprintf("%s vs %s", k, references[k]))
	}
	fmt.Fprintf(&sb, "- Reference shifts as %s.\n", strings.Join(refs, ", "))
	sb.WriteString("- Output nothing except the signal lines.\n")

	return PromptContext{System: systemPrompt, User: sb.String(), SMILES: smiles}
}

// NucleiFor returns 1H and 13C plus every heteronucleus whose element occurs
// in smiles, in canonical order.
func NucleiFor(smiles string) []types.NucleusKey {
	elements := Elements(smiles)
	out := []types.NucleusKey{types.Nucleus1H, types.Nucleus13C}
	if elements["N"] {
		out = append(out, types.Nucleus15N)
	}
	if elements["P"] {
		out = append(out, types.Nucleus31P)
	}
	if elements["F"] {
		out = append(out, types.Nucleus19F)
	}
	return out
}

// Elements returns the set of element symbols (capitalized) in smiles.
func Elements(smiles string) map[string]bool {
	out := make(map[string]bool)
	for i := 0; i < len(smiles); {
		ch := smiles[i]
		if ch == '[' {
			end := strings.IndexByte(smiles[i:], ']')
			if end < 0 {
				break
			}
			if sym := bracketSymbol(smiles[i+1 : i+end]); sym != "" {
				out[sym] = true
			}
			i += end + 1
			continue
		}
		if i+1 < len(smiles) && (smiles[i:i+2] == "Cl" || smiles[i:i+2] == "Br") {
			out[smiles[i:i+2]] = true
			i += 2
			continue
		}
		if organicSubset[smiles[i:i+1]] {
			out[strings.ToUpper(smiles[i:i+1])] = true
		}
		i++
	}
	return out
}

// bracketSymbol extracts the element from bracket-atom contents such as
// "13CH3", "nH", "Na+" or "C@@H".
func bracketSymbol(contents string) string {
	j := 0
	for j < len(contents) && isDigit(contents[j]) {
		j++
	}
	if j >= len(contents) {
		return ""
	}
	ch := contents[j]
	switch {
	case ch >= 'A' && ch <= 'Z':
		if j+1 < len(contents) && contents[j+1] >= 'a' && contents[j+1] <= 'z' && contents[j+1] != 'H' {
			two := contents[j : j+2]
			if knownTwoLetter[two] {
				return two
			}
		}
		return string(ch)
	case ch >= 'a' && ch <= 'z':
		if j+1 < len(contents) && (contents[j:j+2] == "se" || contents[j:j+2] == "as") {
			return strings.ToUpper(contents[j:j+1]) + contents[j+1:j+2]
		}
		return strings.ToUpper(string(ch))
	}
	return ""
}

var knownTwoLetter = map[string]bool{
	"Cl": true, "Br": true, "Si": true, "Se": true, "Na": true, "Li": true, "Mg": true,
	"Al": true, "Ca": true, "Fe": true, "Cu": true, "Zn": true, "Sn": true, "Pt": true,
	"Pd": true, "As": true, "Ge": true, "Te": true, "Ag": true, "Au": true, "Ni": true,
	"Co": true, "Mn": true, "Cr": true, "Ti": true, "Hg": true, "Pb": true, "Ru": true,
	"Rh": true, "Ir": true, "Os": true, "Cs": true, "Rb": true, "Sr": true, "Ba": true,
}
