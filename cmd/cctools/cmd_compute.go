package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chazu/cctools/internal/logging"
	"github.com/chazu/cctools/pkg/calc"
	"github.com/chazu/cctools/pkg/geom"
	"github.com/chazu/cctools/pkg/mesh"
)

var (
	modelPath  string
	queryPath  string
	outPath    string
	outFormat  string
	pointFlag  string
	driveFlag  string
	xFlag      float64
	compFlag   string
	summaryOut bool
)

// computeCmd computes a single query
var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Compute the corrected field value at one point",
	Long: `Interpolates the mesh at --point, adds the correction of --drive
evaluated at --x, and prints the result.

Example:
  cctools compute --model model.json --point 5,5,5 --drive B1 --x 10`,
	Args: cobra.NoArgs,
	RunE: computeOne,
}

// batchCmd computes every query of a CSV file
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Compute every query listed in a CSV file",
	Long: `Reads queries (x,y,z[,drive[,x[,component]]]) from --queries and
computes them in parallel against one model state. Results are written in
query order.

Example:
  cctools batch --model model.json --queries queries.csv --out results.csv`,
	Args: cobra.NoArgs,
	RunE: computeBatch,
}

func init() {
	computeCmd.Flags().StringVarP(&modelPath, "model", "m", "", "Model file (JSON or YAML)")
	computeCmd.Flags().StringVarP(&pointFlag, "point", "p", "", "Query point as x,y,z")
	computeCmd.Flags().StringVarP(&driveFlag, "drive", "d", "", "Drive id (empty for no correction)")
	computeCmd.Flags().Float64Var(&xFlag, "x", 0, "Drive excitation")
	computeCmd.Flags().StringVarP(&compFlag, "component", "c", "", "Field component (default from config)")
	computeCmd.Flags().StringVar(&outFormat, "format", "", "Output format: csv or jsonl")
	_ = computeCmd.MarkFlagRequired("point")

	batchCmd.Flags().StringVarP(&modelPath, "model", "m", "", "Model file (JSON or YAML)")
	batchCmd.Flags().StringVarP(&queryPath, "queries", "q", "", "Query CSV file")
	batchCmd.Flags().StringVarP(&outPath, "out", "o", "", "Result file (default stdout)")
	batchCmd.Flags().StringVar(&outFormat, "format", "", "Output format: csv or jsonl")
	batchCmd.Flags().BoolVar(&summaryOut, "summary", false, "Print a summary line to stderr")
}

func computeOne(cmd *cobra.Command, args []string) error {
	p, err := geom.ParseVec3(pointFlag)
	if err != nil {
		return err
	}
	q := calc.Query{Point: p, Drive: driveFlag, X: xFlag}
	if compFlag != "" {
		if q.Component, err = mesh.ParseFieldComponent(compFlag); err != nil {
			return err
		}
	}

	h, err := loadModel(modelPath)
	if err != nil {
		return err
	}
	opts, err := calcOptions()
	if err != nil {
		return err
	}
	sink, closeSink, err := openSink(cmd.OutOrStdout(), "", outFormat)
	if err != nil {
		return err
	}

	c := calc.New(h, sink, opts...)
	r, err := c.Compute(q)
	if cerr := closeSink(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	logger.Info("computed",
		zap.Stringer("point", r.Point),
		logging.Sci("value", r.Value),
		zap.Bool("extrapolated", r.Extrapolated))
	return nil
}

func computeBatch(cmd *cobra.Command, args []string) error {
	qs, err := readQueries(queryPath)
	if err != nil {
		return err
	}
	h, err := loadModel(modelPath)
	if err != nil {
		return err
	}
	opts, err := calcOptions()
	if err != nil {
		return err
	}
	sink, closeSink, err := openSink(cmd.OutOrStdout(), outPath, outFormat)
	if err != nil {
		return err
	}

	c := calc.New(h, sink, opts...)
	results, err := c.ComputeAll(commandContext(cmd), qs)
	if cerr := closeSink(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	logger.Info("batch complete",
		zap.Stringer("run", c.RunID()),
		zap.Int("queries", len(qs)),
		zap.Int("results", len(results)))
	if summaryOut {
		extrapolated := 0
		for _, r := range results {
			if r.Extrapolated {
				extrapolated++
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %d results, %d extrapolated\n", c.RunID(), len(results), extrapolated)
	}
	return nil
}
