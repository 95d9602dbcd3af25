package shift_stats

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

//go:embed seed.yaml
var seedYAML []byte

// Stat summarises observed shifts for one environment.
type Stat struct {
	Mean    float64 `yaml:"mean"`
	StdDev  float64 `yaml:"std_dev"`
	Samples int     `yaml:"samples"`
}

// Record is one row of the dataset.
type Record struct {
	Nucleus types.NucleusKey `yaml:"nucleus"`
	Env     string           `yaml:"env"`
	Stat    `yaml:",inline"`
}

// Dataset maps environment keys to shift statistics per nucleus. Only ¹H and
// ¹³C are stored. A Dataset is not safe for concurrent mutation; once built
// it is read-only.
type Dataset struct {
	tables map[types.NucleusKey]map[string]Stat
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{tables: map[types.NucleusKey]map[string]Stat{
		types.Nucleus1H:  {},
		types.Nucleus13C: {},
	}}
}

// Add inserts or replaces one record. The key is canonicalized first.
func (d *Dataset) Add(r Record) error {
	table, ok := d.tables[r.Nucleus]
	if !ok {
		return fmt.Errorf("unsupported nucleus %q", r.Nucleus)
	}
	key := CanonicalKey(r.Env)
	if key == "" {
		return fmt.Errorf("empty environment key")
	}
	if r.Samples < 1 {
		r.Samples = 1
	}
	table[key] = r.Stat
	return nil
}

// Lookup returns the statistic for the most specific key of env present in
// the table for nucleus, together with the level it matched at.
func (d *Dataset) Lookup(nucleus types.NucleusKey, env Environment) (Stat, Level, bool) {
	table := d.tables[nucleus]
	if table == nil {
		return Stat{}, 0, false
	}
	for _, level := range []Level{LevelNeighbors, LevelHydrogens, LevelElement} {
		if s, ok := table[env.Key(level)]; ok {
			return s, level, true
		}
	}
	return Stat{}, 0, false
}

// Len returns the number of records for nucleus.
func (d *Dataset) Len(nucleus types.NucleusKey) int { return len(d.tables[nucleus]) }

// Records returns every record, proton table first.
func (d *Dataset) Records() []Record {
	out := make([]Record, 0, d.Len(types.Nucleus1H)+d.Len(types.Nucleus13C))
	for _, n := range []types.NucleusKey{types.Nucleus1H, types.Nucleus13C} {
		for k, s := range d.tables[n] {
			out = append(out, Record{Nucleus: n, Env: k, Stat: s})
		}
	}
	return out
}

type seedFile struct {
	Version int      `yaml:"version"`
	Records []Record `yaml:"records"`
}

// ParseDataset decodes a YAML dataset document.
func ParseDataset(data []byte) (*Dataset, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	d := NewDataset()
	for i, r := range f.Records {
		r.Nucleus = types.NucleusKey(strings.ToUpper(string(r.Nucleus)))
		if err := d.Add(r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return d, nil
}

// SeedDataset returns the built-in dataset.
func SeedDataset() (*Dataset, error) {
	return ParseDataset(seedYAML)
}
