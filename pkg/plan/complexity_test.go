package plan

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func chainPlan(k int) *Plan {
	p := &Plan{Name: "chain", Meta: Meta{Env: "dev"}}
	for i := 0; i < k; i++ {
		n := Node{ID: fmt.Sprintf("n%d", i), Op: "core:sourcer"}
		if i > 0 {
			n.Inputs = []string{fmt.Sprintf("n%d", i-1)}
		}
		p.Nodes = append(p.Nodes, n)
	}
	return p
}

// fanoutPlan builds one sourcer feeding `width` features nodes, all feeding
// one merge.
func fanoutPlan(width int) *Plan {
	p := &Plan{Name: "fanout", Meta: Meta{Env: "dev"}}
	p.Nodes = append(p.Nodes, Node{ID: "src", Op: "core:sourcer"})
	var mids []string
	for i := 0; i < width; i++ {
		id := fmt.Sprintf("feat%d", i)
		p.Nodes = append(p.Nodes, Node{ID: id, Op: "core:features", Inputs: []string{"src"}})
		mids = append(mids, id)
	}
	p.Nodes = append(p.Nodes, Node{ID: "merge", Op: "core:merge", Inputs: mids})
	return p
}

func TestMetricsSingleNode(t *testing.T) {
	m := ComputeMetrics(chainPlan(1), 5)
	require.Equal(t, int64(1), m.NodeCount)
	require.Equal(t, int64(0), m.EdgeCount)
	require.Equal(t, int64(1), m.MaxDepth)
}

func TestMetricsChainDepth(t *testing.T) {
	m := ComputeMetrics(chainPlan(7), 5)
	require.Equal(t, int64(7), m.NodeCount)
	require.Equal(t, int64(6), m.EdgeCount)
	require.Equal(t, int64(7), m.MaxDepth)
	require.Equal(t, int64(1), m.FanoutPeak)
	require.Equal(t, int64(1), m.FaninPeak)
	require.Equal(t,
		[]string{"n0", "n1", "n2", "n3", "n4", "n5", "n6"},
		m.LongestPath)
}

func TestMetricsFanout(t *testing.T) {
	m := ComputeMetrics(fanoutPlan(20), 5)
	require.Equal(t, int64(22), m.NodeCount)
	require.Equal(t, int64(40), m.EdgeCount)
	require.Equal(t, int64(3), m.MaxDepth)
	require.Equal(t, int64(20), m.FanoutPeak)
	require.Equal(t, int64(20), m.FaninPeak)

	require.Len(t, m.TopFanout, 5)
	require.Equal(t, "src", m.TopFanout[0].ID)
	require.Equal(t, int64(20), m.TopFanout[0].Degree)
	require.Equal(t, "merge", m.TopFanin[0].ID)
	require.Equal(t, int64(20), m.TopFanin[0].Degree)
}

func TestCheckBudgetFanoutRejection(t *testing.T) {
	m := ComputeMetrics(fanoutPlan(20), 5)
	result := CheckBudget(m, DefaultBudget())
	require.False(t, result.Passed)
	require.Contains(t, result.Diagnostics, "fanout_peak=20 (hard_limit=16)")
	require.Contains(t, result.Diagnostics, "src core:sourcer fanout=20")
	require.Contains(t, result.Diagnostics, "Hint:")

	// Relaxing to 20 passes.
	budget := DefaultBudget()
	budget.FanoutPeakHard = 20
	budget.FaninPeakHard = 20
	require.True(t, CheckBudget(m, budget).Passed)
}

// All hard limits at 0 never reject on hard limits.
func TestCheckBudgetZeroMeansUnset(t *testing.T) {
	m := ComputeMetrics(fanoutPlan(50), 5)
	result := CheckBudget(m, Budget{Weights: DefaultScoreWeights()})
	require.True(t, result.Passed)
	require.Empty(t, result.Warnings)
}

func TestCheckBudgetSoftWarnings(t *testing.T) {
	m := ComputeMetrics(chainPlan(10), 5)
	budget := Budget{EdgeCountSoft: 5, ComplexityScoreSoft: 1, Weights: DefaultScoreWeights()}
	result := CheckBudget(m, budget)
	require.True(t, result.Passed, "soft limits never fail compilation")
	require.Len(t, result.Warnings, 2)
	require.Contains(t, result.Warnings[0], "edge_count=9 (soft_limit=5)")
	require.Contains(t, result.Warnings[1], "complexity_score=")
}

func TestLongestPathTruncation(t *testing.T) {
	m := ComputeMetrics(chainPlan(30), 5)
	budget := Budget{MaxDepthHard: 5, Weights: DefaultScoreWeights()}
	result := CheckBudget(m, budget)
	require.False(t, result.Passed)
	require.Contains(t, result.Diagnostics, "Longest path (len=30)")
	require.Contains(t, result.Diagnostics, "... -> n29")
	// The prefix shows only the first few nodes.
	require.False(t, strings.Contains(result.Diagnostics, "n0 -> n1 -> n2 -> n3 -> n4 -> n5 -> n6 -> n7"))
}

func TestScoreWeights(t *testing.T) {
	m := Metrics{NodeCount: 10, MaxDepth: 4, FanoutPeak: 2, FaninPeak: 3, EdgeCount: 12}
	// 1*10 + 5*4 + 2*2 + 2*3 + 0.5*12 = 46
	require.Equal(t, int64(46), Score(m, DefaultScoreWeights()))
}

func TestParseBudget(t *testing.T) {
	b, err := ParseBudget([]byte(`{
		"hard": {"node_count": 100, "fanout_peak": 8},
		"soft": {"edge_count": 50},
		"score_weights": {"max_depth": 7}
	}`))
	require.NoError(t, err)
	require.Equal(t, int64(100), b.NodeCountHard)
	require.Equal(t, int64(8), b.FanoutPeakHard)
	// Missing fields keep defaults.
	require.Equal(t, int64(120), b.MaxDepthHard)
	require.Equal(t, int64(16), b.FaninPeakHard)
	require.Equal(t, int64(50), b.EdgeCountSoft)
	require.Equal(t, int64(8000), b.ComplexityScoreSoft)
	require.Equal(t, float64(7), b.Weights.MaxDepth)
	require.Equal(t, float64(1), b.Weights.NodeCount)
}

func TestParseBudgetInvalid(t *testing.T) {
	_, err := ParseBudget([]byte(`{not json`))
	require.Error(t, err)
}
