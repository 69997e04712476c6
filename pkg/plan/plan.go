// Package plan models the declarative ranking DAG, parses it from JSON,
// computes complexity metrics against a budget, and compiles it for
// execution.
package plan

import (
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
)

// ErrInvalidEnv is returned for meta.env values outside {prod, dev, test}.
var ErrInvalidEnv = errors.New("invalid plan env")

// Node is one operator instance in a plan.
type Node struct {
	ID       string          `json:"id"`
	Op       string          `json:"op"`
	Inputs   []string        `json:"inputs,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
	TraceKey string          `json:"trace_key,omitempty"`
}

// Meta is plan-level metadata.
type Meta struct {
	Env string `json:"env"`
}

// Logging configures result sampling for external log plumbing.
type Logging struct {
	SampleRate float32 `json:"sample_rate,omitempty"`
	DumpKeys   []int32 `json:"dump_keys,omitempty"`
}

// Plan is a DAG of nodes describing a single ranking computation.
type Plan struct {
	Name    string  `json:"name"`
	Version int     `json:"version"`
	Meta    Meta    `json:"meta"`
	Nodes   []Node  `json:"nodes"`
	Logging Logging `json:"logging,omitempty"`
}

// Parse decodes a plan from JSON. meta.env must be one of "prod", "dev",
// "test" (lowercase); missing env defaults to "dev".
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if p.Meta.Env == "" {
		p.Meta.Env = "dev"
	}
	switch p.Meta.Env {
	case "prod", "dev", "test":
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEnv, p.Meta.Env)
	}
	return &p, nil
}

// ParseFile reads and parses a plan file.
func ParseFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal serialises the compiler-visible fields back to JSON. Parsing the
// result yields an equal plan.
func (p *Plan) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// ValidateTraceKey checks a node trace_key: at most 64 characters drawn
// from [A-Za-z0-9._/-].
func ValidateTraceKey(key string) error {
	if len(key) > 64 {
		return fmt.Errorf("%w: %q is %d characters, limit 64", ErrInvalidTraceKey, key, len(key))
	}
	for _, c := range key {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '/' || c == '-':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidTraceKey, key, string(c))
		}
	}
	return nil
}
