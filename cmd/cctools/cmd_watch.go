package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chazu/cctools/internal/watch"
	"github.com/chazu/cctools/pkg/calc"
)

var debounce time.Duration

// watchCmd recomputes a batch whenever its inputs change
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recompute a query batch whenever the model or query file changes",
	Long: `Computes the queries once, then reloads the model and queries and
recomputes them each time either file is saved. Stop with Ctrl-C.

Example:
  cctools watch --model model.json --queries queries.csv --out results.csv`,
	Args: cobra.NoArgs,
	RunE: watchBatch,
}

func init() {
	watchCmd.Flags().StringVarP(&modelPath, "model", "m", "", "Model file (JSON or YAML)")
	watchCmd.Flags().StringVarP(&queryPath, "queries", "q", "", "Query CSV file")
	watchCmd.Flags().StringVarP(&outPath, "out", "o", "", "Result file, rewritten on every change (default stdout)")
	watchCmd.Flags().StringVar(&outFormat, "format", "", "Output format: csv or jsonl")
	watchCmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before recomputing")
	_ = watchCmd.MarkFlagRequired("model")
	_ = watchCmd.MarkFlagRequired("queries")
}

func watchBatch(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if err := reloadAndCompute(ctx, out); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
	}

	w, err := watch.New([]string{modelPath, queryPath}, func(ctx context.Context, paths []string) {
		logger.Info("inputs changed", zap.Strings("paths", paths))
		if err := reloadAndCompute(ctx, out); err != nil {
			logger.Error("recompute failed", zap.Error(err))
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		}
	}, watch.WithDebounce(debounce), watch.WithLogger(logger.Logger))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	logger.Info("watching", zap.String("model", modelPath), zap.String("queries", queryPath))
	<-ctx.Done()
	return nil
}

// reloadAndCompute reads both inputs afresh and writes one full result set.
func reloadAndCompute(ctx context.Context, out io.Writer) error {
	qs, err := readQueries(queryPath)
	if err != nil {
		return err
	}
	h, err := loadModel(modelPath)
	if err != nil {
		return err
	}
	if v := h.Validate(); !v.OK() {
		return fmt.Errorf("%s: %v", modelPath, v.Errors[0])
	}
	opts, err := calcOptions()
	if err != nil {
		return err
	}
	sink, closeSink, err := openSink(out, outPath, outFormat)
	if err != nil {
		return err
	}

	c := calc.New(h, sink, opts...)
	results, err := c.ComputeAll(ctx, qs)
	if cerr := closeSink(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	logger.Info("recomputed", zap.Stringer("run", c.RunID()), zap.Int("results", len(results)))
	return nil
}
