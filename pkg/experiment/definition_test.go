package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toneDefinition = `
name: tone-pilot
parameters:
  - name: freq
    label: Frequency (Hz)
    log: true
    expr: ascending([1000, 2000], cycles=1)
  - name: level
    label: Level (dB SPL)
    log: true
    value: 60
  - name: probe
    label: Probe frequency (Hz)
    log: true
    expr: ascending([3000, 4000], cycles=1)
    when: freq
`

func writeDefinition(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "def.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLoadDefinition(t *testing.T) {
	def, err := LoadDefinition(writeDefinition(t, toneDefinition))
	require.NoError(t, err)
	assert.Equal(t, "tone-pilot", def.Name)
	require.Len(t, def.Parameters, 3)
	assert.Equal(t, "freq", def.Parameters[0].Name)
	assert.Equal(t, 60, def.Parameters[1].Value)
}

func TestDefinitionParadigm(t *testing.T) {
	def, err := LoadDefinition(writeDefinition(t, toneDefinition))
	require.NoError(t, err)
	par, err := def.Paradigm()
	require.NoError(t, err)

	assert.Equal(t, []string{"freq", "level", "probe"}, par.Parameters())

	e, ok := par.Expression("level")
	require.True(t, ok)
	assert.Equal(t, 60.0, e.Value())

	e, ok = par.Expression("probe")
	require.True(t, ok)
	assert.Equal(t, "freq", e.Trigger())
}

func TestDefinitionBadFormula(t *testing.T) {
	doc := `
parameters:
  - name: freq
    expr: "1 +"
`
	def, err := LoadDefinition(writeDefinition(t, doc))
	require.NoError(t, err)
	_, err = def.Paradigm()
	assert.ErrorContains(t, err, "freq")
}

func TestDefinitionRunsEndToEnd(t *testing.T) {
	def, err := LoadDefinition(writeDefinition(t, toneDefinition))
	require.NoError(t, err)
	par, err := def.Paradigm()
	require.NoError(t, err)

	run, err := New(par)
	require.NoError(t, err)
	defer run.Close()

	require.NoError(t, run.Run())
	// freq cycles twice through its two values before probe exhausts:
	// (1000,3000), (2000,3000), (1000,4000), (2000,4000) is the paired
	// walk; with both bounded at one cycle the run ends after the cross
	// product.
	assert.Equal(t, 4, run.Trials())
}
