package plan

import (
	"fmt"
	"os"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// NodeDegree names one node with its fan-in or fan-out for diagnostics.
type NodeDegree struct {
	ID     string
	Op     string
	Degree int64
}

// Metrics are the complexity measurements of a plan DAG.
type Metrics struct {
	NodeCount  int64
	EdgeCount  int64
	MaxDepth   int64
	FanoutPeak int64
	FaninPeak  int64

	TopFanout   []NodeDegree
	TopFanin    []NodeDegree
	LongestPath []string
}

// ScoreWeights weight each metric in the complexity score.
type ScoreWeights struct {
	NodeCount  float64 `json:"node_count"`
	MaxDepth   float64 `json:"max_depth"`
	FanoutPeak float64 `json:"fanout_peak"`
	FaninPeak  float64 `json:"fanin_peak"`
	EdgeCount  float64 `json:"edge_count"`
}

// DefaultScoreWeights returns the standard weighting (1, 5, 2, 2, 0.5).
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{NodeCount: 1, MaxDepth: 5, FanoutPeak: 2, FaninPeak: 2, EdgeCount: 0.5}
}

// Budget holds complexity limits. Hard limits fail compilation; soft limits
// only warn. A limit of 0 means unset.
type Budget struct {
	NodeCountHard  int64
	MaxDepthHard   int64
	FanoutPeakHard int64
	FaninPeakHard  int64

	EdgeCountSoft       int64
	ComplexityScoreSoft int64

	Weights ScoreWeights
}

// DefaultBudget returns the standard production budget.
func DefaultBudget() Budget {
	return Budget{
		NodeCountHard:       2000,
		MaxDepthHard:        120,
		FanoutPeakHard:      16,
		FaninPeakHard:       16,
		EdgeCountSoft:       10000,
		ComplexityScoreSoft: 8000,
		Weights:             DefaultScoreWeights(),
	}
}

type budgetFile struct {
	Hard struct {
		NodeCount  *int64 `json:"node_count"`
		MaxDepth   *int64 `json:"max_depth"`
		FanoutPeak *int64 `json:"fanout_peak"`
		FaninPeak  *int64 `json:"fanin_peak"`
	} `json:"hard"`
	Soft struct {
		EdgeCount       *int64 `json:"edge_count"`
		ComplexityScore *int64 `json:"complexity_score"`
	} `json:"soft"`
	ScoreWeights *struct {
		NodeCount  *float64 `json:"node_count"`
		MaxDepth   *float64 `json:"max_depth"`
		FanoutPeak *float64 `json:"fanout_peak"`
		FaninPeak  *float64 `json:"fanin_peak"`
		EdgeCount  *float64 `json:"edge_count"`
	} `json:"score_weights"`
}

// ParseBudget decodes a budget from JSON; missing fields keep defaults.
func ParseBudget(data []byte) (Budget, error) {
	b := DefaultBudget()
	var file budgetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return b, fmt.Errorf("parse complexity budget: %w", err)
	}
	if file.Hard.NodeCount != nil {
		b.NodeCountHard = *file.Hard.NodeCount
	}
	if file.Hard.MaxDepth != nil {
		b.MaxDepthHard = *file.Hard.MaxDepth
	}
	if file.Hard.FanoutPeak != nil {
		b.FanoutPeakHard = *file.Hard.FanoutPeak
	}
	if file.Hard.FaninPeak != nil {
		b.FaninPeakHard = *file.Hard.FaninPeak
	}
	if file.Soft.EdgeCount != nil {
		b.EdgeCountSoft = *file.Soft.EdgeCount
	}
	if file.Soft.ComplexityScore != nil {
		b.ComplexityScoreSoft = *file.Soft.ComplexityScore
	}
	if sw := file.ScoreWeights; sw != nil {
		if sw.NodeCount != nil {
			b.Weights.NodeCount = *sw.NodeCount
		}
		if sw.MaxDepth != nil {
			b.Weights.MaxDepth = *sw.MaxDepth
		}
		if sw.FanoutPeak != nil {
			b.Weights.FanoutPeak = *sw.FanoutPeak
		}
		if sw.FaninPeak != nil {
			b.Weights.FaninPeak = *sw.FaninPeak
		}
		if sw.EdgeCount != nil {
			b.Weights.EdgeCount = *sw.EdgeCount
		}
	}
	return b, nil
}

// LoadBudgetFile reads and parses a budget file.
func LoadBudgetFile(path string) (Budget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultBudget(), fmt.Errorf("read complexity budget %s: %w", path, err)
	}
	return ParseBudget(data)
}

// ComputeMetrics measures a plan DAG: counts, degree peaks, longest path by
// Kahn traversal with per-node depth, and the top-K degree offenders.
func ComputeMetrics(p *Plan, topK int) Metrics {
	m := Metrics{NodeCount: int64(len(p.Nodes))}
	if len(p.Nodes) == 0 {
		return m
	}

	adj := make(map[string][]string)      // node -> dependents
	inDegree := make(map[string]int64)
	outDegree := make(map[string]int64)
	for _, n := range p.Nodes {
		inDegree[n.ID] = int64(len(n.Inputs))
		for _, input := range n.Inputs {
			adj[input] = append(adj[input], n.ID)
			m.EdgeCount++
		}
	}
	for id, deps := range adj {
		outDegree[id] = int64(len(deps))
	}

	for _, n := range p.Nodes {
		if d := outDegree[n.ID]; d > m.FanoutPeak {
			m.FanoutPeak = d
		}
		if d := inDegree[n.ID]; d > m.FaninPeak {
			m.FaninPeak = d
		}
	}

	// Longest path via Kahn's traversal: depth[v] = 1 + max predecessor
	// depth, with back-pointers for reconstruction.
	depth := make(map[string]int64, len(p.Nodes))
	pred := make(map[string]string)
	remaining := make(map[string]int64, len(p.Nodes))
	var queue []string
	for _, n := range p.Nodes {
		remaining[n.ID] = inDegree[n.ID]
		depth[n.ID] = 1
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	var deepest string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if depth[current] > m.MaxDepth {
			m.MaxDepth = depth[current]
			deepest = current
		}
		for _, dep := range adj[current] {
			if d := depth[current] + 1; d > depth[dep] {
				depth[dep] = d
				pred[dep] = current
			}
			remaining[dep]--
			if remaining[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if deepest != "" {
		var path []string
		for current := deepest; current != ""; current = pred[current] {
			path = append(path, current)
		}
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
		m.LongestPath = path
	}

	m.TopFanout = topDegrees(p, outDegree, topK)
	m.TopFanin = topDegrees(p, inDegree, topK)
	return m
}

func topDegrees(p *Plan, degrees map[string]int64, topK int) []NodeDegree {
	out := make([]NodeDegree, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		out = append(out, NodeDegree{ID: n.ID, Op: n.Op, Degree: degrees[n.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Degree > out[j].Degree })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Score computes the weighted complexity score
// w_N·N + w_D·D + w_Fout·Fout + w_Fin·Fin + w_E·E.
func Score(m Metrics, w ScoreWeights) int64 {
	return int64(w.NodeCount*float64(m.NodeCount) +
		w.MaxDepth*float64(m.MaxDepth) +
		w.FanoutPeak*float64(m.FanoutPeak) +
		w.FaninPeak*float64(m.FaninPeak) +
		w.EdgeCount*float64(m.EdgeCount))
}

// CheckResult is the outcome of a budget check.
type CheckResult struct {
	Passed      bool
	Warnings    []string
	Diagnostics string
}

const remediationHint = "Hint:\n" +
	"  Collapse repeated logic into 1-3 guest module nodes, or request a core operator.\n" +
	"  See docs/complexity-governance.md for guidance."

// CheckBudget evaluates metrics against a budget. Hard-limit breaches fail
// with full diagnostics; soft-limit breaches only produce warnings.
func CheckBudget(m Metrics, b Budget) CheckResult {
	result := CheckResult{Passed: true}

	var violations []string
	if b.NodeCountHard > 0 && m.NodeCount > b.NodeCountHard {
		violations = append(violations, fmt.Sprintf("node_count=%d (hard_limit=%d)", m.NodeCount, b.NodeCountHard))
	}
	if b.MaxDepthHard > 0 && m.MaxDepth > b.MaxDepthHard {
		violations = append(violations, fmt.Sprintf("max_depth=%d (hard_limit=%d)", m.MaxDepth, b.MaxDepthHard))
	}
	if b.FanoutPeakHard > 0 && m.FanoutPeak > b.FanoutPeakHard {
		violations = append(violations, fmt.Sprintf("fanout_peak=%d (hard_limit=%d)", m.FanoutPeak, b.FanoutPeakHard))
	}
	if b.FaninPeakHard > 0 && m.FaninPeak > b.FaninPeakHard {
		violations = append(violations, fmt.Sprintf("fanin_peak=%d (hard_limit=%d)", m.FaninPeak, b.FaninPeakHard))
	}

	if b.EdgeCountSoft > 0 && m.EdgeCount > b.EdgeCountSoft {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("edge_count=%d (soft_limit=%d)", m.EdgeCount, b.EdgeCountSoft))
	}
	if b.ComplexityScoreSoft > 0 {
		if score := Score(m, b.Weights); score > b.ComplexityScoreSoft {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("complexity_score=%d (soft_limit=%d)", score, b.ComplexityScoreSoft))
		}
	}

	if len(violations) == 0 {
		return result
	}

	result.Passed = false
	result.Diagnostics = formatDiagnostics(m, b)
	return result
}

func formatDiagnostics(m Metrics, b Budget) string {
	var sb strings.Builder
	sb.WriteString("PLAN_TOO_COMPLEX:\n")

	metric := func(name string, val, limit int64, limitName string) {
		fmt.Fprintf(&sb, "  %s=%d", name, val)
		if limit > 0 {
			fmt.Fprintf(&sb, " (%s=%d)", limitName, limit)
		}
		sb.WriteString("\n")
	}
	metric("node_count", m.NodeCount, b.NodeCountHard, "hard_limit")
	metric("edge_count", m.EdgeCount, b.EdgeCountSoft, "soft_limit")
	metric("max_depth", m.MaxDepth, b.MaxDepthHard, "hard_limit")
	metric("fanout_peak", m.FanoutPeak, b.FanoutPeakHard, "hard_limit")
	metric("fanin_peak", m.FaninPeak, b.FaninPeakHard, "hard_limit")

	if len(m.TopFanout) > 0 {
		sb.WriteString("Top fanout nodes:\n")
		for _, n := range m.TopFanout {
			if n.Degree > 0 {
				fmt.Fprintf(&sb, "  %s %s fanout=%d\n", n.ID, n.Op, n.Degree)
			}
		}
	}
	if len(m.TopFanin) > 0 {
		sb.WriteString("Top fanin nodes:\n")
		for _, n := range m.TopFanin {
			if n.Degree > 0 {
				fmt.Fprintf(&sb, "  %s %s fanin=%d\n", n.ID, n.Op, n.Degree)
			}
		}
	}

	if len(m.LongestPath) > 0 {
		fmt.Fprintf(&sb, "Longest path (len=%d):\n  ", len(m.LongestPath))
		for i, id := range m.LongestPath {
			if i > 0 {
				sb.WriteString(" -> ")
			}
			sb.WriteString(id)
			// Long paths truncate after a five-node prefix.
			if i >= 4 && i < len(m.LongestPath)-2 {
				sb.WriteString(" -> ... -> " + m.LongestPath[len(m.LongestPath)-1])
				break
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString(remediationHint)
	return sb.String()
}
