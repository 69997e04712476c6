package core

import (
	json "github.com/goccy/go-json"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/nodes"
)

// Features populates requested feature columns with stub values:
// freshness derives from the candidate id, embeddings are constant vectors,
// and every other key is zero. Unchanged columns share with the input.
type Features struct{}

type featuresParams struct {
	Keys []int32 `json:"keys"`
}

func (Features) Run(ctx *nodes.ExecContext, input *batch.ColumnBatch, params json.RawMessage) (*batch.ColumnBatch, error) {
	var p featuresParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}

	n := input.RowCount()
	builder := batch.NewBuilder(input)
	idCol, _ := input.I64(keys.CandCandidateID)

	for _, keyID := range p.Keys {
		switch keyID {
		case keys.FeatFreshness:
			col := batch.NewF32Column(n)
			for i := 0; i < n; i++ {
				freshness := float32(0.5)
				if idCol != nil && !idCol.IsNull(i) {
					freshness = float32(idCol.At(i)%100) / 100
				}
				col.Set(i, freshness)
			}
			if err := builder.AddColumn(keyID, col); err != nil {
				return nil, err
			}

		case keys.FeatEmbedding, keys.FeatQueryEmbed:
			col := batch.NewF32VecColumn(n, keys.EmbeddingDim)
			vec := make([]float32, keys.EmbeddingDim)
			for d := range vec {
				vec[d] = 0.1
			}
			for i := 0; i < n; i++ {
				if err := col.SetRow(i, vec); err != nil {
					return nil, err
				}
			}
			if err := builder.AddColumn(keyID, col); err != nil {
				return nil, err
			}

		default:
			col := batch.NewF32Column(n)
			for i := 0; i < n; i++ {
				col.Set(i, 0)
			}
			if err := builder.AddColumn(keyID, col); err != nil {
				return nil, err
			}
		}
	}

	return builder.Build(), nil
}

func registerFeatures(r *nodes.Registry) {
	r.Register(&nodes.NodeSpec{
		Op:            "core:features",
		NamespacePath: "core.features",
		Stability:     nodes.StabilityStable,
		Doc:           "Populates the requested feature keys with stub values.",
		ParamsSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"keys": {"type": "array", "items": {"type": "integer"}}
			},
			"required": ["keys"]
		}`),
		Reads:  []int32{keys.CandCandidateID},
		Writes: nodes.ParamWrites("keys"),
	}, func() nodes.Runner { return Features{} })
}
