// Command rankdsl compiles and executes ranking plans and exports operator
// metadata for out-of-process tooling.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/cobra"

	"github.com/sandboxws/rankdsl/engine/pkg/arrowio"
	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/executor"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/metrics"
	"github.com/sandboxws/rankdsl/engine/pkg/nodes"
	"github.com/sandboxws/rankdsl/engine/pkg/nodes/core"
	"github.com/sandboxws/rankdsl/engine/pkg/nodes/star"
	"github.com/sandboxws/rankdsl/engine/pkg/plan"
	"github.com/sandboxws/rankdsl/engine/pkg/trace"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rankdsl",
		Short:         "Ranking engine - execute compiled ranking plans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), nodesCmd())
	return root
}

func newOperatorRegistry() *nodes.Registry {
	reg := nodes.NewRegistry()
	core.Register(reg)
	star.Register(reg)
	return reg
}

func loadKeys(path string) (*keys.Registry, error) {
	if path == "" {
		return keys.Compiled(), nil
	}
	return keys.LoadFile(path)
}

func runCmd() *cobra.Command {
	var (
		keysPath    string
		budgetPath  string
		policyPath  string
		arrowOut    string
		metricsAddr string
		dumpTop     int
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "run <plan.json>",
		Short: "Compile and execute a ranking plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trace.SetEnabled(!quiet)
			if metricsAddr != "" {
				metrics.ServeMetrics(metricsAddr)
			}

			registry, err := loadKeys(keysPath)
			if err != nil {
				return err
			}

			p, err := plan.ParseFile(args[0])
			if err != nil {
				return err
			}

			ops := newOperatorRegistry()
			compiler := plan.NewCompiler(registry, ops)
			tracer := trace.Default()
			compiler.SetTracer(tracer)
			if budgetPath != "" {
				budget, err := plan.LoadBudgetFile(budgetPath)
				if err != nil {
					return err
				}
				compiler.SetBudget(budget)
			}

			compiled, err := compiler.Compile(p)
			if err != nil {
				return fmt.Errorf("compile plan: %w", err)
			}

			exec := executor.New(registry, ops)
			exec.SetTracer(tracer)
			if policyPath != "" {
				policy, err := star.LoadPolicyFile(policyPath)
				if err != nil {
					return err
				}
				exec.SetPolicy(policy)
			}

			result, err := exec.Execute(compiled)
			if err != nil {
				return fmt.Errorf("execute plan: %w", err)
			}

			if arrowOut != "" {
				if err := arrowio.WriteIPCFile(arrowOut, result, registry, memory.DefaultAllocator); err != nil {
					return err
				}
				slog.Info("wrote arrow output", "path", arrowOut, "rows", result.RowCount())
			}

			if !quiet {
				dumpResults(cmd, result, dumpTop)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&keysPath, "keys", "k", "", "path to keys.json (compiled-in keys if not set)")
	cmd.Flags().StringVar(&budgetPath, "budget", "", "path to a complexity budget file")
	cmd.Flags().StringVar(&policyPath, "policy", "", "path to a guest-module policy file")
	cmd.Flags().StringVar(&arrowOut, "arrow-out", "", "write the final batch as an Arrow IPC file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().IntVarP(&dumpTop, "dump-top", "n", 0, "number of top results to display")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	return cmd
}

func dumpResults(cmd *cobra.Command, result *batch.ColumnBatch, dumpTop int) {
	rows := result.RowCount()
	fmt.Fprintf(cmd.OutOrStdout(), "\n=== Results (%d candidates) ===\n", rows)

	count := rows
	if dumpTop > 0 && dumpTop < rows {
		count = dumpTop
	}
	for i := 0; i < count; i++ {
		fmt.Fprintf(cmd.OutOrStdout(), "  [%d] candidate_id=%s, score.final=%s\n",
			i,
			result.ValueAt(i, keys.CandCandidateID).Format(),
			result.ValueAt(i, keys.ScoreFinal).Format())
	}
}

func nodesCmd() *cobra.Command {
	var keysPath string

	export := &cobra.Command{
		Use:   "export",
		Short: "Print every registered NodeSpec as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := loadKeys(keysPath)
			if err != nil {
				return err
			}
			out, err := nodes.ExportSpecs(newOperatorRegistry(), registry)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	export.Flags().StringVarP(&keysPath, "keys", "k", "", "path to keys.json (compiled-in keys if not set)")

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Operator metadata commands",
	}
	cmd.AddCommand(export)
	return cmd
}
