package nodes

import (
	json "github.com/goccy/go-json"

	"github.com/sandboxws/rankdsl/engine/pkg/keys"
)

type exportKeyRef struct {
	ID   int32  `json:"id"`
	Name string `json:"name,omitempty"`
}

type exportWrites struct {
	Kind      string         `json:"kind"`
	Keys      []exportKeyRef `json:"keys,omitempty"`
	ParamName string         `json:"param_name,omitempty"`
}

type exportSpec struct {
	Op            string          `json:"op"`
	NamespacePath string          `json:"namespace_path"`
	Stability     string          `json:"stability"`
	Doc           string          `json:"doc"`
	Kind          string          `json:"kind"`
	ParamsSchema  json.RawMessage `json:"params_schema,omitempty"`
	Reads         []exportKeyRef  `json:"reads"`
	Writes        exportWrites    `json:"writes"`
	Budgets       json.RawMessage `json:"budgets,omitempty"`
	Capabilities  json.RawMessage `json:"capabilities,omitempty"`
}

// ExportSpecs serialises every registered NodeSpec as the JSON array
// consumed by out-of-process tooling. Key ids resolve to names through the
// key registry.
func ExportSpecs(r *Registry, kr *keys.Registry) ([]byte, error) {
	keyRef := func(id int32) exportKeyRef {
		ref := exportKeyRef{ID: id}
		if info, ok := kr.ByID(id); ok {
			ref.Name = info.Name
		}
		return ref
	}

	var out []exportSpec
	for _, op := range r.Ops() {
		spec := r.specs[op]

		reads := make([]exportKeyRef, 0, len(spec.Reads))
		for _, id := range spec.Reads {
			reads = append(reads, keyRef(id))
		}

		writes := exportWrites{Kind: string(spec.Writes.Kind)}
		switch spec.Writes.Kind {
		case WritesStatic:
			writes.Keys = make([]exportKeyRef, 0, len(spec.Writes.Keys))
			for _, id := range spec.Writes.Keys {
				writes.Keys = append(writes.Keys, keyRef(id))
			}
		case WritesParamDerived:
			writes.ParamName = spec.Writes.ParamName
		}

		out = append(out, exportSpec{
			Op:            spec.Op,
			NamespacePath: spec.NamespacePath,
			Stability:     string(spec.Stability),
			Doc:           spec.Doc,
			Kind:          "core",
			ParamsSchema:  spec.ParamsSchema,
			Reads:         reads,
			Writes:        writes,
			Budgets:       spec.Budgets,
			Capabilities:  spec.Capabilities,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}
