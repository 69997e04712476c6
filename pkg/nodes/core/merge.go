package core

import (
	"fmt"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/nodes"
)

// Merge deduplicates candidates by candidate id. In "first" mode the
// earliest row per id survives; in "max_base" mode the row with the largest
// base score does (ties keep the earliest). Rows without a candidate id are
// skipped. Output rows follow the sorted input indices of the kept rows;
// because the row set changes, every column is materialised fresh.
type Merge struct{}

type mergeParams struct {
	Dedup string `json:"dedup"`
}

func (Merge) Run(ctx *nodes.ExecContext, input *batch.ColumnBatch, params json.RawMessage) (*batch.ColumnBatch, error) {
	p := mergeParams{Dedup: "first"}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}
	switch p.Dedup {
	case "first", "max_base":
	default:
		return nil, fmt.Errorf("merge: unknown dedup mode %q", p.Dedup)
	}

	idCol, _ := input.I64(keys.CandCandidateID)
	baseCol, _ := input.F32(keys.ScoreBase)

	// Pick the surviving input row per candidate id.
	kept := make(map[int64]int)
	for i := 0; i < input.RowCount(); i++ {
		if idCol == nil || idCol.IsNull(i) {
			continue
		}
		id := idCol.At(i)
		prev, seen := kept[id]
		if !seen {
			kept[id] = i
			continue
		}
		if p.Dedup == "max_base" && baseAt(baseCol, i) > baseAt(baseCol, prev) {
			kept[id] = i
		}
	}

	rows := make([]int, 0, len(kept))
	for _, i := range kept {
		rows = append(rows, i)
	}
	sort.Ints(rows)

	out := batch.New(len(rows))
	for _, keyID := range input.Keys() {
		src := input.Column(keyID)
		dim := 0
		if vc, ok := src.(*batch.F32VecColumn); ok {
			dim = vc.Dim()
		}
		col, err := batch.NewColumn(src.Type(), len(rows), dim)
		if err != nil {
			return nil, err
		}
		for outRow, inRow := range rows {
			if src.IsNull(inRow) {
				continue
			}
			if err := col.SetValue(outRow, src.Value(inRow)); err != nil {
				return nil, fmt.Errorf("merge key %d: %w", keyID, err)
			}
		}
		if err := out.SetColumn(keyID, col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func baseAt(col *batch.F32Column, row int) float32 {
	if col == nil || col.IsNull(row) {
		return 0
	}
	return col.At(row)
}

func registerMerge(r *nodes.Registry) {
	r.Register(&nodes.NodeSpec{
		Op:            "core:merge",
		NamespacePath: "core.merge",
		Stability:     nodes.StabilityStable,
		Doc:           "Concatenates and deduplicates candidates by candidate id.",
		ParamsSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"dedup": {"type": "string", "enum": ["first", "max_base"], "default": "first"}
			}
		}`),
		Reads: []int32{keys.CandCandidateID, keys.ScoreBase},
		// Merge re-emits every column present on its input.
		Writes: nodes.StaticWrites(),
	}, func() nodes.Runner { return Merge{} })
}
