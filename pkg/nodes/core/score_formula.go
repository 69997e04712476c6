package core

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/expr"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/nodes"
)

// ScoreFormula evaluates an expression IR per row into an output column
// (score.final by default).
type ScoreFormula struct{}

type scoreFormulaParams struct {
	Expr        json.RawMessage `json:"expr"`
	OutputKeyID *int32          `json:"output_key_id"`
}

func (ScoreFormula) Run(ctx *nodes.ExecContext, input *batch.ColumnBatch, params json.RawMessage) (*batch.ColumnBatch, error) {
	var p scoreFormulaParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}

	outputKey := keys.ScoreFinal
	if p.OutputKeyID != nil {
		outputKey = *p.OutputKeyID
	}

	tree := expr.Signal(keys.ScoreBase)
	if len(p.Expr) > 0 {
		var err error
		tree, err = expr.Parse(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("score_formula: %w", err)
		}
	}

	builder := batch.NewBuilder(input)
	if err := builder.AddColumn(outputKey, expr.EvaluateColumn(tree, input, ctx.Registry)); err != nil {
		return nil, err
	}
	return builder.Build(), nil
}

func registerScoreFormula(r *nodes.Registry) {
	r.Register(&nodes.NodeSpec{
		Op:            "core:score_formula",
		NamespacePath: "core.score_formula",
		Stability:     nodes.StabilityStable,
		Doc:           "Evaluates a score expression per row into the output key (default score.final).",
		ParamsSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"expr": {"type": "object"},
				"output_key_id": {"type": "integer"}
			}
		}`),
		Writes: nodes.ParamWrites("output_key_id"),
	}, func() nodes.Runner { return ScoreFormula{} })
}
