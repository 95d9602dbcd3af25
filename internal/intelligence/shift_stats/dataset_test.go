package shift_stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

func TestSeedDataset_Loads(t *testing.T) {
	ds, err := SeedDataset()
	require.NoError(t, err)
	assert.Greater(t, ds.Len(types.Nucleus1H), 20)
	assert.Greater(t, ds.Len(types.Nucleus13C), 20)
	assert.Equal(t, ds.Len(types.Nucleus1H)+ds.Len(types.Nucleus13C), len(ds.Records()))
}

func TestSeedDataset_CoversElementLevelForCarbon(t *testing.T) {
	ds, err := SeedDataset()
	require.NoError(t, err)
	for _, hyb := range []string{"sp3", "sp2", "sp", "ar"} {
		_, level, ok := ds.Lookup(types.Nucleus13C, Environment{Element: "C", Hybridization: hyb, Hydrogens: 7})
		assert.True(t, ok, hyb)
		assert.Equal(t, LevelElement, level, hyb)
	}
}

func TestDataset_LookupPrefersMostSpecific(t *testing.T) {
	ds := NewDataset()
	require.NoError(t, ds.Add(Record{Nucleus: types.Nucleus13C, Env: "C;sp3", Stat: Stat{Mean: 30}}))
	require.NoError(t, ds.Add(Record{Nucleus: types.Nucleus13C, Env: "C;sp3;H2", Stat: Stat{Mean: 32}}))
	require.NoError(t, ds.Add(Record{Nucleus: types.Nucleus13C, Env: "C;sp3;H2;O:sp3,C:sp3", Stat: Stat{Mean: 60}}))

	env := Environment{Element: "C", Hybridization: "sp3", Hydrogens: 2, Neighbors: []string{"C:sp3", "O:sp3"}}
	s, level, ok := ds.Lookup(types.Nucleus13C, env)
	require.True(t, ok)
	assert.Equal(t, LevelNeighbors, level)
	assert.Equal(t, 60.0, s.Mean)
	assert.Equal(t, 1, s.Samples)

	env.Neighbors = []string{"C:sp3", "N:sp3"}
	s, level, _ = ds.Lookup(types.Nucleus13C, env)
	assert.Equal(t, LevelHydrogens, level)
	assert.Equal(t, 32.0, s.Mean)

	env.Hydrogens = 0
	s, level, _ = ds.Lookup(types.Nucleus13C, env)
	assert.Equal(t, LevelElement, level)
	assert.Equal(t, 30.0, s.Mean)

	_, _, ok = ds.Lookup(types.Nucleus1H, env)
	assert.False(t, ok)
	_, _, ok = ds.Lookup(types.Nucleus19F, env)
	assert.False(t, ok)
}

func TestDataset_AddRejects(t *testing.T) {
	ds := NewDataset()
	assert.Error(t, ds.Add(Record{Nucleus: types.Nucleus15N, Env: "N;sp3"}))
	assert.Error(t, ds.Add(Record{Nucleus: types.Nucleus1H, Env: "  "}))
}

func TestParseDataset(t *testing.T) {
	doc := []byte(`
version: 1
records:
  - {nucleus: 1h, env: "C;sp3;H3;C:sp3", mean: 0.9, std_dev: 0.1, samples: 10}
  - {nucleus: 13C, env: "C;sp3;H2;O:sp3,C:sp3", mean: 60.0}
`)
	ds, err := ParseDataset(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len(types.Nucleus1H))

	s, level, ok := ds.Lookup(types.Nucleus13C, Environment{
		Element: "C", Hybridization: "sp3", Hydrogens: 2, Neighbors: []string{"C:sp3", "O:sp3"},
	})
	require.True(t, ok)
	assert.Equal(t, LevelNeighbors, level)
	assert.Equal(t, 60.0, s.Mean)

	_, err = ParseDataset([]byte("records: [ {nucleus: 31P, env: P;sp3, mean: 0} ]"))
	assert.Error(t, err)

	_, err = ParseDataset([]byte("records: {"))
	assert.Error(t, err)
}
