package core

import (
	"math"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/nodes"
)

func testCtx() *nodes.ExecContext {
	return &nodes.ExecContext{Registry: keys.Compiled(), PlanName: "test", NodeID: "n"}
}

func mustRun(t *testing.T, r nodes.Runner, in *batch.ColumnBatch, params string) *batch.ColumnBatch {
	t.Helper()
	out, err := r.Run(testCtx(), in, json.RawMessage(params))
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func approx(t *testing.T, got, want float32) {
	t.Helper()
	if math.Abs(float64(got-want)) > 1e-6 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// ── sourcer ─────────────────────────────────────────────────────────

func TestSourcer(t *testing.T) {
	out := mustRun(t, Sourcer{}, batch.New(0), `{"k": 3, "name": "s1"}`)
	if out.RowCount() != 3 {
		t.Fatalf("rows %d, want 3", out.RowCount())
	}
	ids, _ := out.I64(keys.CandCandidateID)
	base, _ := out.F32(keys.ScoreBase)
	for i := 0; i < 3; i++ {
		if ids.At(i) != int64(i+1) {
			t.Fatalf("id[%d]=%d", i, ids.At(i))
		}
		approx(t, base.At(i), 1-float32(i)/3)
	}
}

func TestSourcerDefaults(t *testing.T) {
	out := mustRun(t, Sourcer{}, batch.New(0), ``)
	if out.RowCount() != 100 {
		t.Fatalf("rows %d, want default 100", out.RowCount())
	}
}

func TestSourcerZeroRows(t *testing.T) {
	out := mustRun(t, Sourcer{}, batch.New(0), `{"k": 0}`)
	if out.RowCount() != 0 {
		t.Fatalf("rows %d, want 0", out.RowCount())
	}
}

// ── features ────────────────────────────────────────────────────────

func TestFeatures(t *testing.T) {
	src := mustRun(t, Sourcer{}, batch.New(0), `{"k": 3}`)
	params := `{"keys": [2001, 2002, 3003]}`
	out := mustRun(t, Features{}, src, params)

	// Unchanged columns share handles with the input.
	if out.Column(keys.CandCandidateID) != src.Column(keys.CandCandidateID) {
		t.Fatal("candidate id column must share")
	}
	if out.Column(keys.ScoreBase) != src.Column(keys.ScoreBase) {
		t.Fatal("base score column must share")
	}

	fresh, ok := out.F32(keys.FeatFreshness)
	if !ok {
		t.Fatal("freshness missing")
	}
	// freshness = (candidate_id mod 100) / 100, ids are 1..3.
	for i := 0; i < 3; i++ {
		approx(t, fresh.At(i), float32(i+1)/100)
	}

	embed, ok := out.F32Vec(keys.FeatEmbedding)
	if !ok {
		t.Fatal("embedding missing")
	}
	if embed.Dim() != keys.EmbeddingDim {
		t.Fatalf("dim %d", embed.Dim())
	}
	approx(t, embed.Row(0)[0], 0.1)

	// Non-special keys default to zero.
	adjusted, ok := out.F32(keys.ScoreAdjusted)
	if !ok {
		t.Fatal("adjusted missing")
	}
	approx(t, adjusted.At(2), 0)
}

// ── model ───────────────────────────────────────────────────────────

func TestModel(t *testing.T) {
	src := mustRun(t, Sourcer{}, batch.New(0), `{"k": 2}`)
	withFeatures := mustRun(t, Features{}, src, `{"keys": [2001]}`)
	out := mustRun(t, Model{}, withFeatures, `{"name": "m1"}`)

	ml, ok := out.F32(keys.ScoreML)
	if !ok {
		t.Fatal("score.ml missing")
	}
	base, _ := out.F32(keys.ScoreBase)
	fresh, _ := out.F32(keys.FeatFreshness)
	for i := 0; i < 2; i++ {
		approx(t, ml.At(i), 0.6*base.At(i)+0.4*fresh.At(i))
	}

	if out.Column(keys.ScoreBase) != withFeatures.Column(keys.ScoreBase) {
		t.Fatal("unchanged columns must share")
	}
}

func TestModelMissingInputsYieldZeroTerms(t *testing.T) {
	in := batch.New(2)
	out := mustRun(t, Model{}, in, `{}`)
	ml, _ := out.F32(keys.ScoreML)
	approx(t, ml.At(0), 0)
}

// ── score_formula ───────────────────────────────────────────────────

func TestScoreFormula(t *testing.T) {
	src := mustRun(t, Sourcer{}, batch.New(0), `{"k": 3}`)
	params := `{"expr": {"op": "mul", "args": [
		{"op": "const", "value": 2},
		{"op": "signal", "key_id": 3001}
	]}}`
	out := mustRun(t, ScoreFormula{}, src, params)

	final, ok := out.F32(keys.ScoreFinal)
	if !ok {
		t.Fatal("score.final missing")
	}
	approx(t, final.At(0), 2.0)
	approx(t, final.At(1), 2*(1-1.0/3))
	approx(t, final.At(2), 2*(1-2.0/3))
}

func TestScoreFormulaDefaultExprAndOutput(t *testing.T) {
	src := mustRun(t, Sourcer{}, batch.New(0), `{"k": 2}`)
	out := mustRun(t, ScoreFormula{}, src, `{}`)
	final, _ := out.F32(keys.ScoreFinal)
	base, _ := out.F32(keys.ScoreBase)
	approx(t, final.At(0), base.At(0))
	approx(t, final.At(1), base.At(1))
}

func TestScoreFormulaCustomOutputKey(t *testing.T) {
	src := mustRun(t, Sourcer{}, batch.New(0), `{"k": 1}`)
	out := mustRun(t, ScoreFormula{}, src,
		`{"output_key_id": 3003, "expr": {"op": "const", "value": 0.5}}`)
	adjusted, ok := out.F32(keys.ScoreAdjusted)
	if !ok {
		t.Fatal("score.adjusted missing")
	}
	approx(t, adjusted.At(0), 0.5)
}

// ── merge ───────────────────────────────────────────────────────────

// mergeInput builds 6 rows: candidate ids [1 2 3 2 1] with base scores
// [0.1 0.9 0.5 0.2 0.8], plus a final row whose id is null.
func mergeInput(t *testing.T) *batch.ColumnBatch {
	t.Helper()
	ids := batch.NewI64Column(6)
	base := batch.NewF32Column(6)
	for i, pair := range []struct {
		id   int64
		base float32
	}{{1, 0.1}, {2, 0.9}, {3, 0.5}, {2, 0.2}, {1, 0.8}} {
		ids.Set(i, pair.id)
		base.Set(i, pair.base)
	}
	base.Set(5, 0.99) // id stays null

	in := batch.New(6)
	if err := in.SetColumn(keys.CandCandidateID, ids); err != nil {
		t.Fatal(err)
	}
	if err := in.SetColumn(keys.ScoreBase, base); err != nil {
		t.Fatal(err)
	}
	return in
}

func TestMergeFirst(t *testing.T) {
	out := mustRun(t, Merge{}, mergeInput(t), `{"dedup": "first"}`)
	// Kept rows: 0 (id 1), 1 (id 2), 2 (id 3); null-id row skipped.
	if out.RowCount() != 3 {
		t.Fatalf("rows %d, want 3", out.RowCount())
	}
	ids, _ := out.I64(keys.CandCandidateID)
	base, _ := out.F32(keys.ScoreBase)
	wantIDs := []int64{1, 2, 3}
	wantBase := []float32{0.1, 0.9, 0.5}
	for i := range wantIDs {
		if ids.At(i) != wantIDs[i] {
			t.Fatalf("id[%d]=%d, want %d", i, ids.At(i), wantIDs[i])
		}
		approx(t, base.At(i), wantBase[i])
	}
}

func TestMergeMaxBase(t *testing.T) {
	out := mustRun(t, Merge{}, mergeInput(t), `{"dedup": "max_base"}`)
	// Kept rows sorted by input index: 1 (id 2, 0.9), 2 (id 3, 0.5), 4 (id 1, 0.8).
	if out.RowCount() != 3 {
		t.Fatalf("rows %d, want 3", out.RowCount())
	}
	ids, _ := out.I64(keys.CandCandidateID)
	base, _ := out.F32(keys.ScoreBase)
	wantIDs := []int64{2, 3, 1}
	wantBase := []float32{0.9, 0.5, 0.8}
	for i := range wantIDs {
		if ids.At(i) != wantIDs[i] {
			t.Fatalf("id[%d]=%d, want %d", i, ids.At(i), wantIDs[i])
		}
		approx(t, base.At(i), wantBase[i])
	}
}

func TestMergeUnknownMode(t *testing.T) {
	_, err := (Merge{}).Run(testCtx(), mergeInput(t), json.RawMessage(`{"dedup": "bogus"}`))
	if err == nil {
		t.Fatal("expected an error")
	}
}

// A 0-row batch flows through every operator without failure.
func TestZeroRowFlow(t *testing.T) {
	empty := batch.New(0)
	for _, tc := range []struct {
		name   string
		runner nodes.Runner
		params string
	}{
		{"features", Features{}, `{"keys": [2001]}`},
		{"model", Model{}, `{}`},
		{"score_formula", ScoreFormula{}, `{}`},
		{"merge", Merge{}, `{"dedup": "first"}`},
	} {
		out, err := tc.runner.Run(testCtx(), empty, json.RawMessage(tc.params))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if out.RowCount() != 0 {
			t.Fatalf("%s: rows %d, want 0", tc.name, out.RowCount())
		}
	}
}
