package keys

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sandboxws/rankdsl/engine/pkg/value"
)

func TestLoadRegistry(t *testing.T) {
	r, err := Load([]byte(`{
		"version": 3,
		"keys": [
			{"id": 1, "name": "a.one", "type": "i64", "scope": "test", "owner": "ranking", "doc": "first"},
			{"id": 2, "name": "a.two", "type": "f32vec"}
		]
	}`))
	require.NoError(t, err)
	require.Equal(t, 3, r.Version())
	require.Len(t, r.All(), 2)

	info, ok := r.ByID(1)
	require.True(t, ok)
	require.Equal(t, "a.one", info.Name)
	require.Equal(t, value.TypeI64, info.Type)
	require.Equal(t, "ranking", info.Owner)

	byName, ok := r.ByName("a.two")
	require.True(t, ok)
	require.Equal(t, int32(2), byName.ID)
	require.Equal(t, value.TypeF32Vec, byName.Type)

	_, ok = r.ByID(99)
	require.False(t, ok)
}

func TestLoadRegistryDuplicateID(t *testing.T) {
	_, err := Load([]byte(`{"version": 1, "keys": [
		{"id": 1, "name": "a", "type": "f32"},
		{"id": 1, "name": "b", "type": "f32"}
	]}`))
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestLoadRegistryDuplicateName(t *testing.T) {
	_, err := Load([]byte(`{"version": 1, "keys": [
		{"id": 1, "name": "a", "type": "f32"},
		{"id": 2, "name": "a", "type": "i64"}
	]}`))
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestLoadRegistryUnknownType(t *testing.T) {
	_, err := Load([]byte(`{"version": 1, "keys": [
		{"id": 1, "name": "a", "type": "f64"}
	]}`))
	require.ErrorIs(t, err, ErrUnknownKeyType)
}

func TestLoadRegistryBadJSON(t *testing.T) {
	_, err := Load([]byte(`{`))
	require.Error(t, err)
}

func TestCompiledTable(t *testing.T) {
	r := Compiled()

	info, ok := r.ByID(CandCandidateID)
	require.True(t, ok)
	require.Equal(t, "cand.candidate_id", info.Name)
	require.Equal(t, value.TypeI64, info.Type)

	final, ok := r.ByName("score.final")
	require.True(t, ok)
	require.Equal(t, ScoreFinal, final.ID)
	require.Equal(t, value.TypeF32, final.Type)

	embed, ok := r.ByID(FeatEmbedding)
	require.True(t, ok)
	require.Equal(t, value.TypeF32Vec, embed.Type)

	require.Len(t, r.All(), 11)
}
