// Package expr implements the score-formula expression IR: a small tree of
// arithmetic and similarity operators parsed from JSON and evaluated per row
// against a ColumnBatch.
package expr

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// Kind discriminates IR node variants.
type Kind uint8

const (
	KindConst Kind = iota
	KindSignal
	KindAdd
	KindMul
	KindMin
	KindMax
	KindCos
	KindClamp
	KindPenalty
)

// ErrParse is wrapped by all expression parse failures.
var ErrParse = errors.New("expression parse error")

// Node is one IR tree node. Trees are immutable after construction and fully
// owned by their holder; which fields are meaningful depends on Kind.
type Node struct {
	Kind Kind

	Value float32 // KindConst
	KeyID int32   // KindSignal
	Name  string  // KindPenalty

	Args       []*Node // KindAdd, KindMul, KindMin, KindMax
	A, B       *Node   // KindCos
	X, Lo, Hi  *Node   // KindClamp
}

// Const builds a constant node.
func Const(v float32) *Node { return &Node{Kind: KindConst, Value: v} }

// Signal builds a column-reference node.
func Signal(keyID int32) *Node { return &Node{Kind: KindSignal, KeyID: keyID} }

// Add builds a sum node.
func Add(args ...*Node) *Node { return &Node{Kind: KindAdd, Args: args} }

// Mul builds a product node.
func Mul(args ...*Node) *Node { return &Node{Kind: KindMul, Args: args} }

// Min builds a minimum node.
func Min(args ...*Node) *Node { return &Node{Kind: KindMin, Args: args} }

// Max builds a maximum node.
func Max(args ...*Node) *Node { return &Node{Kind: KindMax, Args: args} }

// Cos builds a cosine-similarity node over two signal operands.
func Cos(a, b *Node) *Node { return &Node{Kind: KindCos, A: a, B: b} }

// Clamp builds a clamp node.
func Clamp(x, lo, hi *Node) *Node { return &Node{Kind: KindClamp, X: x, Lo: lo, Hi: hi} }

// Penalty builds a penalty lookup node.
func Penalty(name string) *Node { return &Node{Kind: KindPenalty, Name: name} }

type exprJSON struct {
	Op    string          `json:"op"`
	Value *float32        `json:"value"`
	KeyID *int32          `json:"key_id"`
	Name  string          `json:"name"`
	Args  []json.RawMessage `json:"args"`
	A     json.RawMessage `json:"a"`
	B     json.RawMessage `json:"b"`
	X     json.RawMessage `json:"x"`
	Lo    json.RawMessage `json:"lo"`
	Hi    json.RawMessage `json:"hi"`
}

// Parse decodes an expression tree from its JSON form, e.g.
// {"op":"mul","args":[{"op":"const","value":2},{"op":"signal","key_id":3001}]}.
func Parse(data []byte) (*Node, error) {
	var raw exprJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	parseChild := func(field string, data json.RawMessage) (*Node, error) {
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: op %q missing %q", ErrParse, raw.Op, field)
		}
		return Parse(data)
	}

	parseArgs := func() ([]*Node, error) {
		args := make([]*Node, 0, len(raw.Args))
		for i, a := range raw.Args {
			n, err := Parse(a)
			if err != nil {
				return nil, fmt.Errorf("arg %d: %w", i, err)
			}
			args = append(args, n)
		}
		return args, nil
	}

	switch raw.Op {
	case "const":
		if raw.Value == nil {
			return nil, fmt.Errorf("%w: const missing value", ErrParse)
		}
		return Const(*raw.Value), nil
	case "signal":
		if raw.KeyID == nil {
			return nil, fmt.Errorf("%w: signal missing key_id", ErrParse)
		}
		return Signal(*raw.KeyID), nil
	case "add", "mul", "min", "max":
		args, err := parseArgs()
		if err != nil {
			return nil, err
		}
		switch raw.Op {
		case "add":
			return Add(args...), nil
		case "mul":
			return Mul(args...), nil
		case "min":
			return Min(args...), nil
		default:
			return Max(args...), nil
		}
	case "cos":
		a, err := parseChild("a", raw.A)
		if err != nil {
			return nil, err
		}
		b, err := parseChild("b", raw.B)
		if err != nil {
			return nil, err
		}
		return Cos(a, b), nil
	case "clamp":
		x, err := parseChild("x", raw.X)
		if err != nil {
			return nil, err
		}
		lo, err := parseChild("lo", raw.Lo)
		if err != nil {
			return nil, err
		}
		hi, err := parseChild("hi", raw.Hi)
		if err != nil {
			return nil, err
		}
		return Clamp(x, lo, hi), nil
	case "penalty":
		if raw.Name == "" {
			return nil, fmt.Errorf("%w: penalty missing name", ErrParse)
		}
		return Penalty(raw.Name), nil
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrParse, raw.Op)
	}
}

// CollectKeyIDs returns every key id referenced transitively by Signal
// leaves, de-duplicated in first-reference order. No node spec calls it:
// node read sets are declared statically, not inferred from expressions.
func CollectKeyIDs(n *Node) []int32 {
	seen := make(map[int32]bool)
	var out []int32
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case KindSignal:
			if !seen[n.KeyID] {
				seen[n.KeyID] = true
				out = append(out, n.KeyID)
			}
		case KindAdd, KindMul, KindMin, KindMax:
			for _, a := range n.Args {
				walk(a)
			}
		case KindCos:
			walk(n.A)
			walk(n.B)
		case KindClamp:
			walk(n.X)
			walk(n.Lo)
			walk(n.Hi)
		}
	}
	walk(n)
	return out
}
