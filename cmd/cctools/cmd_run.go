package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/cctools/pkg/engine"
	"github.com/chazu/cctools/pkg/study"
)

var (
	reportPath string
	saveModel  string
)

// runCmd evaluates a study script
var runCmd = &cobra.Command{
	Use:   "run [study.zy]",
	Short: "Evaluate a study script and compute its queries",
	Long: `Evaluates a Lisp study script that declares a domain, mesh samples,
drives and queries, then computes every query.

Example:
  (domain :min (vec3 0 0 0) :max (vec3 10 10 10))
  (sample (vec3 5 5 5) :longitudinal 1 :normal 2 :transverse 3)
  (drive "B1" :offset 0.1 :slope 0.01)
  (query (vec3 5 5 5) :drive "B1" :x 10)`,
	Args: cobra.ExactArgs(1),
	RunE: runStudy,
}

func init() {
	runCmd.Flags().StringVarP(&outPath, "out", "o", "", "Result file (default stdout)")
	runCmd.Flags().StringVar(&outFormat, "format", "", "Output format: csv or jsonl")
	runCmd.Flags().StringVar(&reportPath, "report", "", "Write the full JSON report to this file")
	runCmd.Flags().StringVar(&saveModel, "save-model", "", "Save the model the study declares (JSON or YAML)")
}

func runStudy(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	copts, err := calcOptions()
	if err != nil {
		return err
	}
	mopts, err := modelOptions()
	if err != nil {
		return err
	}
	sink, closeSink, err := openSink(cmd.OutOrStdout(), outPath, outFormat)
	if err != nil {
		return err
	}

	runner := study.NewRunner(
		study.WithEngine(engine.NewEngine(engine.WithTimeout(cfg.GetEngineTimeout()))),
		study.WithLogger(logger.Logger),
		study.WithModelOptions(mopts...),
		study.WithCalcOptions(copts...),
	)
	rep := runner.Run(commandContext(cmd), string(source), sink)
	if err := closeSink(); err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	for _, w := range rep.Warnings {
		fmt.Fprintf(stderr, "%s: warning: %s\n", args[0], describe(w))
	}
	for _, e := range rep.Errors {
		fmt.Fprintf(stderr, "%s: error: %s\n", args[0], describe(e))
	}

	if reportPath != "" {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(reportPath, append(data, '\n'), 0o644); err != nil {
			return err
		}
	}
	if saveModel != "" && rep.Model != nil {
		if err := rep.Model.Save(saveModel); err != nil {
			return err
		}
	}

	if !rep.OK() {
		return fmt.Errorf("%s: %d error(s)", args[0], len(rep.Errors))
	}
	return nil
}

func describe(m study.Message) string {
	switch {
	case m.Line > 0:
		return fmt.Sprintf("line %d: %s", m.Line, m.Message)
	case m.Path != "":
		return fmt.Sprintf("%s: %s", m.Path, m.Message)
	default:
		return m.Message
	}
}
