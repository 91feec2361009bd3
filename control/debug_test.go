package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestProbes(t *testing.T) {
	p := NewProbes()
	p.RegisterProbe("b", func() any { return 2 })
	p.RegisterProbe("a", func() any { return map[string]int{"x": 1} })
	assert.Equal(t, []string{"a", "b"}, p.Names())

	state := p.DumpState()
	assert.Equal(t, 2, state["b"])

	out, err := p.DumpYAML()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, 2, decoded["b"])

	p.Unregister("b")
	assert.Equal(t, []string{"a"}, p.Names())
}

func TestPlatformProbes(t *testing.T) {
	p := NewProbes()
	RegisterPlatformProbes(p)
	state := p.DumpState()
	assert.Greater(t, state["platform.cpus"], 0)
	assert.Contains(t, state, "platform.os")
}
