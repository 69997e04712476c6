// Package core implements the built-in native operators: sourcer, features,
// model, score_formula, and merge. All are deterministic given their input
// batch, params, and registry.
package core

import "github.com/sandboxws/rankdsl/engine/pkg/nodes"

// Register installs every core operator into the registry.
func Register(r *nodes.Registry) {
	registerSourcer(r)
	registerFeatures(r)
	registerModel(r)
	registerScoreFormula(r)
	registerMerge(r)
}
