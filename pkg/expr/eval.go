package expr

import (
	"math"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
)

// Evaluate computes the expression for one row of a batch.
//
// Signal coercion: f32 cells pass through, i64 cells widen to f32; any other
// type, a null cell, or a missing column evaluates to 0. Missing penalty
// keys likewise evaluate to 0.
func Evaluate(n *Node, b *batch.ColumnBatch, row int, reg *keys.Registry) float32 {
	switch n.Kind {
	case KindConst:
		return n.Value

	case KindSignal:
		return signalAt(b, row, n.KeyID)

	case KindAdd:
		var sum float32
		for _, a := range n.Args {
			sum += Evaluate(a, b, row, reg)
		}
		return sum

	case KindMul:
		product := float32(1)
		for _, a := range n.Args {
			product *= Evaluate(a, b, row, reg)
		}
		return product

	case KindMin:
		if len(n.Args) == 0 {
			return 0
		}
		result := Evaluate(n.Args[0], b, row, reg)
		for _, a := range n.Args[1:] {
			if v := Evaluate(a, b, row, reg); v < result {
				result = v
			}
		}
		return result

	case KindMax:
		if len(n.Args) == 0 {
			return 0
		}
		result := Evaluate(n.Args[0], b, row, reg)
		for _, a := range n.Args[1:] {
			if v := Evaluate(a, b, row, reg); v > result {
				result = v
			}
		}
		return result

	case KindCos:
		return cosineAt(b, row, n.A, n.B)

	case KindClamp:
		x := Evaluate(n.X, b, row, reg)
		lo := Evaluate(n.Lo, b, row, reg)
		hi := Evaluate(n.Hi, b, row, reg)
		return clamp(x, lo, hi)

	case KindPenalty:
		if reg == nil {
			return 0
		}
		info, ok := reg.ByName("penalty." + n.Name)
		if !ok {
			return 0
		}
		return signalAt(b, row, info.ID)
	}
	return 0
}

// EvaluateColumn evaluates the expression for every row into a fresh f32
// column.
func EvaluateColumn(n *Node, b *batch.ColumnBatch, reg *keys.Registry) *batch.F32Column {
	out := batch.NewF32Column(b.RowCount())
	for i := 0; i < b.RowCount(); i++ {
		out.Set(i, Evaluate(n, b, i, reg))
	}
	return out
}

func signalAt(b *batch.ColumnBatch, row int, keyID int32) float32 {
	if f32c, ok := b.F32(keyID); ok {
		if f32c.IsNull(row) {
			return 0
		}
		return f32c.At(row)
	}
	if i64c, ok := b.I64(keyID); ok {
		if i64c.IsNull(row) {
			return 0
		}
		return float32(i64c.At(row))
	}
	return 0
}

// cosineAt computes cosine similarity of two f32vec rows. The operands must
// be Signal nodes referencing f32vec columns; anything else, missing or
// empty vectors, length disagreement, or a zero norm yields 0. The result
// is clamped to [-1, 1] against numerical drift.
func cosineAt(b *batch.ColumnBatch, row int, a, bn *Node) float32 {
	va := vecAt(b, row, a)
	vb := vecAt(b, row, bn)
	if len(va) == 0 || len(vb) == 0 || len(va) != len(vb) {
		return 0
	}

	var dot, normA, normB float32
	for i := range va {
		dot += va[i] * vb[i]
		normA += va[i] * va[i]
		normB += vb[i] * vb[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	result := dot / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
	return clamp(result, -1, 1)
}

func vecAt(b *batch.ColumnBatch, row int, n *Node) []float32 {
	if n == nil || n.Kind != KindSignal {
		return nil
	}
	col, ok := b.F32Vec(n.KeyID)
	if !ok || col.IsNull(row) {
		return nil
	}
	return col.Row(row)
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
