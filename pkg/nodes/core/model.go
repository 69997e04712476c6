package core

import (
	json "github.com/goccy/go-json"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/nodes"
)

// Model writes the stub prediction score.ml = 0.6·score.base +
// 0.4·feat.freshness per row.
type Model struct{}

type modelParams struct {
	Name string `json:"name"`
}

func (Model) Run(ctx *nodes.ExecContext, input *batch.ColumnBatch, params json.RawMessage) (*batch.ColumnBatch, error) {
	p := modelParams{Name: "default"}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}

	n := input.RowCount()
	baseCol, _ := input.F32(keys.ScoreBase)
	freshCol, _ := input.F32(keys.FeatFreshness)

	ml := batch.NewF32Column(n)
	for i := 0; i < n; i++ {
		var base, fresh float32
		if baseCol != nil && !baseCol.IsNull(i) {
			base = baseCol.At(i)
		}
		if freshCol != nil && !freshCol.IsNull(i) {
			fresh = freshCol.At(i)
		}
		ml.Set(i, 0.6*base+0.4*fresh)
	}

	builder := batch.NewBuilder(input)
	if err := builder.AddColumn(keys.ScoreML, ml); err != nil {
		return nil, err
	}
	return builder.Build(), nil
}

func registerModel(r *nodes.Registry) {
	r.Register(&nodes.NodeSpec{
		Op:            "core:model",
		NamespacePath: "core.model",
		Stability:     nodes.StabilityStable,
		Doc:           "Runs the stub model and writes score.ml.",
		ParamsSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "default": "default"}
			}
		}`),
		Reads:  []int32{keys.ScoreBase, keys.FeatFreshness},
		Writes: nodes.StaticWrites(keys.ScoreML),
	}, func() nodes.Runner { return Model{} })
}
