// Package keys provides the process-wide key registry: the mapping from
// stable integer key ids to names and declared value types.
package keys

import "github.com/sandboxws/rankdsl/engine/pkg/value"

// Well-known key ids. These match the compiled-in table below and are stable
// across runs.
const (
	CandCandidateID   int32 = 1001
	FeatFreshness     int32 = 2001
	FeatEmbedding     int32 = 2002
	FeatQueryEmbed    int32 = 2003
	ScoreBase         int32 = 3001
	ScoreML           int32 = 3002
	ScoreAdjusted     int32 = 3003
	ScoreFinal        int32 = 3999
	PenaltyConstraint int32 = 4001
	PenaltyDiversity  int32 = 4002
	DebugNodeTimings  int32 = 9001
)

// EmbeddingDim is the dimension of the stub embedding columns.
const EmbeddingDim = 128

// Compiled returns a registry populated from the compiled-in key table.
// Used when no registry file is supplied.
func Compiled() *Registry {
	r := NewRegistry(1)
	for _, k := range compiledKeys {
		// The compiled table is known-good; Add cannot fail here.
		_ = r.Add(k)
	}
	return r
}

var compiledKeys = []KeyInfo{
	{ID: CandCandidateID, Name: "cand.candidate_id", Type: value.TypeI64, Doc: "unique candidate identifier"},
	{ID: FeatFreshness, Name: "feat.freshness", Type: value.TypeF32, Doc: "freshness score in [0,1]"},
	{ID: FeatEmbedding, Name: "feat.embedding", Type: value.TypeF32Vec, Doc: "candidate embedding vector"},
	{ID: FeatQueryEmbed, Name: "feat.query_embedding", Type: value.TypeF32Vec, Doc: "query embedding vector"},
	{ID: ScoreBase, Name: "score.base", Type: value.TypeF32, Doc: "base retrieval score from sourcer"},
	{ID: ScoreML, Name: "score.ml", Type: value.TypeF32, Doc: "ML model prediction score"},
	{ID: ScoreAdjusted, Name: "score.adjusted", Type: value.TypeF32, Doc: "score after adjustments"},
	{ID: ScoreFinal, Name: "score.final", Type: value.TypeF32, Doc: "final ranking score used for ordering"},
	{ID: PenaltyConstraint, Name: "penalty.constraints", Type: value.TypeF32, Doc: "penalty for constraint violations"},
	{ID: PenaltyDiversity, Name: "penalty.diversity", Type: value.TypeF32, Doc: "penalty for diversity enforcement"},
	{ID: DebugNodeTimings, Name: "debug.node_timings", Type: value.TypeString, Doc: "JSON string of per-node timings"},
}
