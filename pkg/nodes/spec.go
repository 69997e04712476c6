package nodes

import json "github.com/goccy/go-json"

// Stability gates which ops a prod plan may reference.
type Stability string

const (
	StabilityStable       Stability = "stable"
	StabilityExperimental Stability = "experimental"
)

// WritesKind discriminates the writes-descriptor variants.
type WritesKind string

const (
	// WritesStatic means the op writes a fixed key set.
	WritesStatic WritesKind = "static"

	// WritesParamDerived means the written keys come from a named param.
	WritesParamDerived WritesKind = "param_derived"
)

// WritesDescriptor says which keys an operator produces.
type WritesDescriptor struct {
	Kind      WritesKind
	Keys      []int32 // WritesStatic
	ParamName string  // WritesParamDerived
}

// StaticWrites builds a static writes-descriptor.
func StaticWrites(keys ...int32) WritesDescriptor {
	return WritesDescriptor{Kind: WritesStatic, Keys: keys}
}

// ParamWrites builds a param-derived writes-descriptor.
func ParamWrites(paramName string) WritesDescriptor {
	return WritesDescriptor{Kind: WritesParamDerived, ParamName: paramName}
}

// NodeSpec is the registered metadata for one op, exported for
// out-of-process tooling.
type NodeSpec struct {
	Op            string
	NamespacePath string
	Stability     Stability
	Doc           string
	ParamsSchema  json.RawMessage
	Reads         []int32
	Writes        WritesDescriptor
	Budgets       json.RawMessage
	Capabilities  json.RawMessage
}
