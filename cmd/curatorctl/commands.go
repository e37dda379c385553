package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nulzo/model-curator/internal/cli"
	"github.com/nulzo/model-curator/internal/gateway"
	"github.com/nulzo/model-curator/pkg/api"
	"github.com/spf13/cobra"
)

func table() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "List providers reachable from this environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			found := gateway.NewDetector().Detect(cmd.Context())
			if asJSON {
				cli.PrettyPrint(found)
				return nil
			}
			if len(found) == 0 {
				fmt.Println(cli.WarningSign(), "no providers detected (set OPENAI_API_KEY, OPENROUTER_API_KEY or run Ollama)")
				return nil
			}
			for _, p := range found {
				fmt.Printf("%s %s %s\n", cli.CheckMark(), cli.Bold(p.ID), cli.Dim(p.BaseURL))
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var detect bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe every provider and show health, reliability and quality",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), detect)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.manager.UpdateProviderQualityScores(cmd.Context()); err != nil {
				fmt.Fprintln(os.Stderr, cli.WarningSign(), err)
			}
			statuses := e.manager.ListProviderStatus()
			if asJSON {
				cli.PrettyPrint(statuses)
				return nil
			}

			w := table()
			fmt.Fprintln(w, "PROVIDER\tTYPE\tSTATE\tRELIABILITY\tQUALITY\tAVOID\tLAST ERROR")
			for _, s := range statuses {
				id := s.ID
				if s.Current {
					id = cli.Arrow() + " " + id
				}
				quality := cli.Dim("-")
				if s.Quality != nil {
					quality = cli.Score(s.Quality.Overall)
				}
				avoid := ""
				if s.ShouldAvoid {
					avoid = cli.CrossMark()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					id, s.Type, cli.State(s.State.String()), cli.Reliability(s.Reliability.String()), quality, avoid, s.LastError)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&detect, "detect", false, "also load providers found in the environment")
	return cmd
}

func modelsCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models advertised by the providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.Close()

			var models []api.ModelInfo
			if provider != "" {
				models, err = e.manager.Registry().ListModels(cmd.Context(), provider)
			} else {
				models, err = e.manager.Registry().ListAllModels(cmd.Context())
			}
			if err != nil && len(models) == 0 {
				return err
			}
			if asJSON {
				cli.PrettyPrint(models)
				return nil
			}

			w := table()
			fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tPRICE\tCAPABILITIES")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", m.ProviderID, m.ID, m.ContextWindow, price(m), capabilities(m))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "only list models of this provider")
	return cmd
}

func price(m api.ModelInfo) string {
	switch {
	case m.IsFree:
		return cli.Style("free", cli.Green)
	case m.Pricing == nil:
		return cli.Dim("unknown")
	default:
		return fmt.Sprintf("$%.4f/$%.4f", m.Pricing.InputPer1K, m.Pricing.OutputPer1K)
	}
}

func capabilities(m api.ModelInfo) string {
	out := make([]string, len(m.Capabilities))
	for i, c := range m.Capabilities {
		out[i] = string(c)
	}
	return strings.Join(out, ",")
}

func evaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <provider> <model>",
		Short: "Run the benchmark suite against a provider/model pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.Close()

			p, err := e.manager.Registry().Get(args[0])
			if err != nil {
				return err
			}
			ev, err := e.evaluator()
			if err != nil {
				return err
			}

			result, err := ev.EvaluateProvider(cmd.Context(), p, args[1])
			if err != nil {
				return err
			}
			if asJSON {
				cli.PrettyPrint(result)
				return nil
			}

			w := table()
			fmt.Fprintln(w, "BENCHMARK\tPASSED\tSCORE\tAVG LATENCY\tTOKENS")
			for _, b := range result.Benchmarks {
				fmt.Fprintf(w, "%s\t%d/%d\t%s\t%s\t%d\n",
					b.Benchmark, b.Passed, b.Total, cli.Score(b.Score), b.AverageLatency.Round(time.Millisecond), b.TotalTokens)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Println()
			fmt.Printf("%s %s/%s  suite %s\n", cli.CheckMark(), cli.Bold(result.ProviderID), result.ModelID, result.SuiteVersion)
			fmt.Printf("  overall      %s\n", cli.Score(result.OverallScore))
			fmt.Printf("  reliability  %s\n", cli.Score(result.ReliabilityScore))
			fmt.Printf("  cost         %s\n", cli.Score(result.CostEfficiency))
			fmt.Printf("  took         %s\n", result.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	var modelID string
	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send one prompt through the curated gateway",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.Close()

			resp, err := e.manager.Chat(cmd.Context(), &api.ChatRequest{
				Model:    modelID,
				Messages: []api.ChatMessage{{Role: "user", Content: api.TextContent(strings.Join(args, " "))}},
			})
			if err != nil {
				return err
			}
			if asJSON {
				cli.PrettyPrint(resp)
				return nil
			}
			fmt.Println(resp.Content())
			fmt.Fprintln(os.Stderr, cli.Dim(fmt.Sprintf("served by %s (%s), %d tokens", resp.Provider, resp.Model, resp.TotalTokens())))
			return nil
		},
	}
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "model id, optionally pinned as <provider>/<model>")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
