package nmr

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// ─────────────────────────────────────────────────────────────────────────────
// Patterns
// ─────────────────────────────────────────────────────────────────────────────

const (
	numberPattern = `([+-]?\d+(?:\.\d+)?)`
	// A label may not be glued to a preceding letter or digit, which keeps
	// formula fragments such as C11H14 from reading as "1H".
	labelGuard = `(?:^|[^0-9A-Za-z])`
	// Delimiters allowed before a bare counted value.
	valueGuard = `(?:^|[\s,;:(])`
)

var (
	fallbackSplitter = regexp.MustCompile(`[\r\n,;•·]+|\s+[-–—*]\s+`)
	bareShift        = regexp.MustCompile(`(?i)(?:^|[^\w.])` + numberPattern + `\s*ppm`)
	// sectionToken reads one value inside a labeled section. Parenthetical
	// asides such as "(400 MHz, CDCl3)" match the first branch and are
	// skipped. Groups: 1 δ glyph, 2 shift, 3 ppm, 4 trailing parenthetical,
	// 5 trailing word.
	sectionToken = regexp.MustCompile(`\([^()]*\)|(?:^|[^\w.])(δ\s*[:=]?\s*)?` + numberPattern +
		`(\s*(?i:ppm))?(\s*\([^()]*\))?(\s*[A-Za-z]+)?`)
	unicodeMinus = strings.NewReplacer("−", "-", "‐", "-")
)

// countPattern matches "(3H)" as well as "(s, 3H)" and "(t, J = 7.2 Hz, 2H)".
func countPattern(suffix string) string {
	return `\(\s*(?:[^()]*?[,;]\s*)?(\d+)\s*` + suffix + `\s*\)`
}

// nucleusPatterns is the compiled pattern set for one nucleus.
type nucleusPatterns struct {
	// label finds "1H:", "¹³C NMR (101 MHz" and the like. It refuses a label
	// closed by ")" or "," so that counts such as "(1H)" never open a section.
	label *regexp.Regexp
	count *regexp.Regexp
	// counted match a shift carrying this nucleus's count anywhere in the
	// text. The shift is group 1 and the count group 2.
	counted []*regexp.Regexp
}

func compilePatterns(cfg types.NucleusConfig) nucleusPatterns {
	count := countPattern(cfg.AtomSuffix)
	return nucleusPatterns{
		label: regexp.MustCompile(`(?i)` + labelGuard + regexp.QuoteMeta(cfg.MassNumber) + `\s*` + cfg.AtomSuffix +
			`(?:\s*-?\s*NMR)?(?:[^),;}\w]|$)`),
		count: regexp.MustCompile(`(?i)` + count),
		counted: []*regexp.Regexp{
			regexp.MustCompile(`(?i)δ\s*[:=]?\s*` + numberPattern + `\s*(?:ppm)?\s*` + count),
			regexp.MustCompile(`(?i)` + valueGuard + numberPattern + `\s*(?:ppm)?\s*` + count),
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Extractor
// ─────────────────────────────────────────────────────────────────────────────

// Extractor pulls per-nucleus raw peaks out of free text. It is safe for
// concurrent use.
type Extractor struct {
	catalog  *Catalog
	patterns map[types.NucleusKey]nucleusPatterns
}

// NewExtractor compiles the pattern set for every nucleus in catalog.
func NewExtractor(catalog *Catalog) *Extractor {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	e := &Extractor{catalog: catalog, patterns: make(map[types.NucleusKey]nucleusPatterns)}
	for _, k := range catalog.Keys() {
		e.patterns[k] = compilePatterns(catalog.Config(k))
	}
	return e
}

type peakKey struct {
	centi int64
	count int
}

type peakSet struct {
	cfg   types.NucleusConfig
	seen  map[peakKey]bool
	peaks []types.RawPeak
}

func newPeakSet(cfg types.NucleusConfig) *peakSet {
	return &peakSet{cfg: cfg, seen: make(map[peakKey]bool), peaks: []types.RawPeak{}}
}

// offer keeps an in-range peak unless the same rounded shift and count was
// already seen.
func (s *peakSet) offer(delta float64, count int) {
	if !s.cfg.InRange(delta) {
		return
	}
	k := peakKey{centi: int64(math.Round(delta * 100)), count: count}
	if s.seen[k] {
		return
	}
	s.seen[k] = true
	s.peaks = append(s.peaks, types.RawPeak{Delta: delta, AtomCount: count})
}

// NormalizeText folds Unicode presentation forms so that "¹³C" reads "13C"
// and typographic minus signs read "-".
func NormalizeText(text string) string {
	return unicodeMinus.Replace(norm.NFKC.String(text))
}

// Extract returns raw peaks for every nucleus. It never fails: text without
// recognizable peaks yields empty lists.
func (e *Extractor) Extract(text string) map[types.NucleusKey][]types.RawPeak {
	text = NormalizeText(text)
	sets := make(map[types.NucleusKey]*peakSet, len(e.patterns))
	for _, k := range e.catalog.Keys() {
		sets[k] = newPeakSet(e.catalog.Config(k))
	}

	for _, sec := range e.sections(text) {
		scanSection(text[sec.start:sec.end], e.patterns[sec.key].count, sets[sec.key])
	}
	for _, k := range e.catalog.Keys() {
		for _, re := range e.patterns[k].counted {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				if delta, ok := parseShift(m[1]); ok {
					sets[k].offer(delta, parseCount(m[2]))
				}
			}
		}
	}

	if len(sets[types.Nucleus1H].peaks) == 0 && len(sets[types.Nucleus13C].peaks) == 0 {
		e.extractBareShifts(text, sets[types.Nucleus1H], sets[types.Nucleus13C])
	}

	out := make(map[types.NucleusKey][]types.RawPeak, len(sets))
	for k, s := range sets {
		out[k] = s.peaks
	}
	return out
}

type section struct {
	key        types.NucleusKey
	start, end int
}

// sections locates the text following each nucleus label. A section runs to
// the end of its first non-blank line or to the next label, whichever comes
// first.
func (e *Extractor) sections(text string) []section {
	var labels []section
	for _, k := range e.catalog.Keys() {
		for _, loc := range e.patterns[k].label.FindAllStringIndex(text, -1) {
			labels = append(labels, section{key: k, start: loc[0], end: loc[1]})
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].start < labels[j].start })

	out := make([]section, 0, len(labels))
	for i, l := range labels {
		body := l.end
		for body < len(text) && isBlank(text[body]) {
			body++
		}
		end := len(text)
		if nl := strings.IndexByte(text[body:], '\n'); nl >= 0 {
			end = body + nl
		}
		if i+1 < len(labels) && labels[i+1].start < end {
			end = labels[i+1].start
		}
		if end > body {
			out = append(out, section{key: l.key, start: body, end: end})
		}
	}
	return out
}

func isBlank(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// scanSection reads every value listed after a label. The count is taken
// from a trailing parenthetical when present and defaults to 1. A bare number
// followed by a word ("3 signals", "7.0 Hz") is prose, not a shift.
func scanSection(text string, count *regexp.Regexp, set *peakSet) {
	for _, m := range sectionToken.FindAllStringSubmatch(text, -1) {
		if m[2] == "" {
			continue
		}
		marked := m[1] != "" || m[3] != "" || m[4] != ""
		if strings.TrimSpace(m[5]) != "" && !marked {
			continue
		}
		delta, ok := parseShift(m[2])
		if !ok {
			continue
		}
		n := 1
		if c := count.FindStringSubmatch(m[4]); c != nil {
			n = parseCount(c[1])
		}
		set.offer(delta, n)
	}
}

// extractBareShifts classifies unlabeled "<value> ppm" tokens by magnitude:
// [0, 15] is read as ¹H and (15, 250] as ¹³C. Fragments carrying any nucleus
// label or count belong to that nucleus and are skipped, so a ¹⁹F or ³¹P
// value is never reclassified here.
func (e *Extractor) extractBareShifts(text string, proton, carbon *peakSet) {
	for _, fragment := range fallbackSplitter.Split(text, -1) {
		if e.hasNucleusMarker(fragment) {
			continue
		}
		m := bareShift.FindStringSubmatch(fragment)
		if m == nil {
			continue
		}
		delta, ok := parseShift(m[1])
		if !ok {
			continue
		}
		switch {
		case delta >= 0 && delta <= 15:
			proton.offer(delta, 1)
		case delta > 15 && delta <= 250:
			carbon.offer(delta, 1)
		}
	}
}

func (e *Extractor) hasNucleusMarker(fragment string) bool {
	for _, p := range e.patterns {
		if p.label.MatchString(fragment) || p.count.MatchString(fragment) {
			return true
		}
	}
	return false
}

func parseShift(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseCount(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
