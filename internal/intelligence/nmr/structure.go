package nmr

import (
	"context"
	"fmt"
	"strings"

	"github.com/turtacn/ShiftScope/pkg/errors"
)

// DefaultMaxSMILESLength bounds accepted SMILES strings.
const DefaultMaxSMILESLength = 400

// organicSubset lists the atoms allowed outside brackets.
var organicSubset = map[string]bool{
	"B": true, "C": true, "N": true, "O": true, "P": true, "S": true,
	"F": true, "Cl": true, "Br": true, "I": true,
	"b": true, "c": true, "n": true, "o": true, "p": true, "s": true,
}

// FirstFragment trims s and returns the part before the first '.'.
func FirstFragment(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// ValidateSMILES checks that s is a plausible single-fragment SMILES string.
// It is a syntactic gate, not a full parser.
func ValidateSMILES(s string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxSMILESLength
	}
	switch {
	case s == "":
		return errors.New(errors.ErrCodeInvalidSMILES, "empty SMILES")
	case len(s) > maxLen:
		return errors.Newf(errors.ErrCodeInvalidSMILES, "SMILES longer than %d characters", maxLen)
	case strings.ContainsAny(s, " \t\r\n"):
		return errors.New(errors.ErrCodeInvalidSMILES, "SMILES contains whitespace")
	case strings.Contains(s, "."):
		return errors.New(errors.ErrCodeInvalidSMILES, "SMILES has more than one fragment")
	case !balanced(s, '(', ')'):
		return errors.New(errors.ErrCodeInvalidSMILES, "unbalanced parentheses").WithDetail(s)
	case !balanced(s, '[', ']'):
		return errors.New(errors.ErrCodeInvalidSMILES, "unbalanced brackets").WithDetail(s)
	case !ringClosuresPaired(s):
		return errors.New(errors.ErrCodeInvalidSMILES, "unpaired ring closure").WithDetail(s)
	}
	if bad := firstUnknownAtom(s); bad != "" {
		return errors.New(errors.ErrCodeInvalidSMILES, fmt.Sprintf("unknown atom %q outside brackets", bad)).WithDetail(s)
	}
	return nil
}

func balanced(s string, open, close rune) bool {
	depth := 0
	for _, ch := range s {
		switch ch {
		case open:
			depth++
		case close:
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func ringClosuresPaired(s string) bool {
	counts := make(map[string]int)
	inBracket := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '[':
			inBracket = true
		case ch == ']':
			inBracket = false
		case inBracket:
		case ch == '%':
			if i+2 >= len(s) || !isDigit(s[i+1]) || !isDigit(s[i+2]) {
				return false
			}
			counts[s[i+1:i+3]]++
			i += 2
		case isDigit(ch):
			counts[string(ch)]++
		}
	}
	for _, c := range counts {
		if c%2 != 0 {
			return false
		}
	}
	return true
}

func firstUnknownAtom(s string) string {
	inBracket := false
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == '[':
			inBracket = true
			i++
			continue
		case ch == ']':
			inBracket = false
			i++
			continue
		case inBracket || isBondOrSyntax(ch):
			i++
			continue
		}
		if i+1 < len(s) && organicSubset[s[i:i+2]] {
			i += 2
			continue
		}
		if organicSubset[s[i:i+1]] {
			i++
			continue
		}
		return s[i : i+1]
	}
	return ""
}

func isBondOrSyntax(ch byte) bool {
	switch ch {
	case '(', ')', '=', '#', '$', ':', '/', '\\', '-', '%', '@', '+', '*':
		return true
	}
	return isDigit(ch)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// ─────────────────────────────────────────────────────────────────────────────
// Structure conversion
// ─────────────────────────────────────────────────────────────────────────────

// PassthroughConverter accepts input that already is SMILES and rejects
// molfiles, InChI strings and anything else it cannot vouch for. Deployments
// with a real cheminformatics toolkit supply their own StructureConverter.
type PassthroughConverter struct {
	MaxLength int
}

// ToSMILES returns the first fragment of structure when it validates as SMILES.
func (p PassthroughConverter) ToSMILES(_ context.Context, structure string) (string, error) {
	trimmed := strings.TrimSpace(structure)
	if strings.HasPrefix(trimmed, "InChI=") || strings.Contains(trimmed, "M  END") || strings.Contains(trimmed, "V2000") || strings.Contains(trimmed, "V3000") {
		return "", errors.New(errors.ErrCodeStructureConversion, "no converter available for this structure format")
	}
	smiles := FirstFragment(trimmed)
	if err := ValidateSMILES(smiles, p.MaxLength); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStructureConversion, "structure is not SMILES")
	}
	return smiles, nil
}
