package core

import (
	json "github.com/goccy/go-json"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/nodes"
)

// Sourcer generates a batch of k candidates: candidate ids 1..k and a base
// score decreasing by rank, 1 - i/k.
type Sourcer struct{}

type sourcerParams struct {
	K    int    `json:"k"`
	Name string `json:"name"`
}

func (Sourcer) Run(ctx *nodes.ExecContext, _ *batch.ColumnBatch, params json.RawMessage) (*batch.ColumnBatch, error) {
	p := sourcerParams{K: 100, Name: "default"}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}

	ids := batch.NewI64Column(p.K)
	base := batch.NewF32Column(p.K)
	for i := 0; i < p.K; i++ {
		ids.Set(i, int64(i+1))
		base.Set(i, 1-float32(i)/float32(p.K))
	}

	out := batch.New(p.K)
	if err := out.SetColumn(keys.CandCandidateID, ids); err != nil {
		return nil, err
	}
	if err := out.SetColumn(keys.ScoreBase, base); err != nil {
		return nil, err
	}
	return out, nil
}

func registerSourcer(r *nodes.Registry) {
	r.Register(&nodes.NodeSpec{
		Op:            "core:sourcer",
		NamespacePath: "core.sourcer",
		Stability:     nodes.StabilityStable,
		Doc:           "Generates k candidates with candidate ids and a rank-decreasing base score.",
		ParamsSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"k": {"type": "integer", "minimum": 0, "default": 100},
				"name": {"type": "string", "default": "default"}
			}
		}`),
		Writes: nodes.StaticWrites(keys.CandCandidateID, keys.ScoreBase),
	}, func() nodes.Runner { return Sourcer{} })
}
