package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePlan = `{
	"name": "sample",
	"version": 2,
	"meta": {"env": "test"},
	"nodes": [
		{"id": "src", "op": "core:sourcer", "params": {"k": 3}},
		{"id": "score", "op": "core:score_formula", "inputs": ["src"],
		 "params": {"expr": {"op": "signal", "key_id": 3001}}, "trace_key": "main/score"}
	],
	"logging": {"sample_rate": 0.5, "dump_keys": [1001, 3999]}
}`

func TestParsePlan(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	require.NoError(t, err)
	require.Equal(t, "sample", p.Name)
	require.Equal(t, 2, p.Version)
	require.Equal(t, "test", p.Meta.Env)
	require.Len(t, p.Nodes, 2)
	require.Equal(t, []string{"src"}, p.Nodes[1].Inputs)
	require.Equal(t, "main/score", p.Nodes[1].TraceKey)
	require.Equal(t, float32(0.5), p.Logging.SampleRate)
	require.Equal(t, []int32{1001, 3999}, p.Logging.DumpKeys)
}

func TestParsePlanDefaultsEnv(t *testing.T) {
	p, err := Parse([]byte(`{"name": "x", "nodes": []}`))
	require.NoError(t, err)
	require.Equal(t, "dev", p.Meta.Env)
}

func TestParsePlanRejectsEnv(t *testing.T) {
	for _, env := range []string{"PROD", "staging", "Production"} {
		_, err := Parse([]byte(`{"name": "x", "meta": {"env": "` + env + `"}, "nodes": []}`))
		require.ErrorIs(t, err, ErrInvalidEnv, env)
	}
}

// Serialising the compiler-visible fields and reparsing yields an equal
// plan.
func TestPlanMarshalRoundTrip(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	require.NoError(t, err)

	data, err := p.Marshal()
	require.NoError(t, err)

	p2, err := Parse(data)
	require.NoError(t, err)

	require.Equal(t, p.Name, p2.Name)
	require.Equal(t, p.Version, p2.Version)
	require.Equal(t, p.Meta, p2.Meta)
	require.Equal(t, p.Logging.SampleRate, p2.Logging.SampleRate)
	require.Equal(t, p.Logging.DumpKeys, p2.Logging.DumpKeys)
	require.Len(t, p2.Nodes, len(p.Nodes))
	for i := range p.Nodes {
		require.Equal(t, p.Nodes[i].ID, p2.Nodes[i].ID)
		require.Equal(t, p.Nodes[i].Op, p2.Nodes[i].Op)
		require.Equal(t, p.Nodes[i].Inputs, p2.Nodes[i].Inputs)
		require.Equal(t, p.Nodes[i].TraceKey, p2.Nodes[i].TraceKey)
		require.JSONEq(t, string(orEmpty(p.Nodes[i].Params)), string(orEmpty(p2.Nodes[i].Params)))
	}
}

func orEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}

func TestValidateTraceKey(t *testing.T) {
	require.NoError(t, ValidateTraceKey("a/b.c_d-9"))
	require.NoError(t, ValidateTraceKey(""))

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	err := ValidateTraceKey(string(long))
	require.True(t, errors.Is(err, ErrInvalidTraceKey))

	require.ErrorIs(t, ValidateTraceKey("has space"), ErrInvalidTraceKey)
	require.ErrorIs(t, ValidateTraceKey("colon:bad"), ErrInvalidTraceKey)
}
