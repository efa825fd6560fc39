package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chazu/cctools/pkg/calc"
	"github.com/chazu/cctools/pkg/mesh"
	"github.com/chazu/cctools/pkg/model"
	"github.com/chazu/cctools/pkg/result"
)

// commandContext returns the command's context, falling back to Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// calcOptions maps the calculation section of the config onto calculator
// options.
func calcOptions() ([]calc.Option, error) {
	r, err := calc.ParseRule(cfg.Calculation.Rule)
	if err != nil {
		return nil, err
	}
	ext, err := calc.ParseExtrapolation(cfg.Calculation.Extrapolation)
	if err != nil {
		return nil, err
	}
	comp, err := mesh.ParseFieldComponent(cfg.Calculation.Component)
	if err != nil {
		return nil, err
	}
	return []calc.Option{
		calc.WithRule(r),
		calc.WithExtrapolation(ext),
		calc.WithComponent(comp),
		calc.WithWorkers(cfg.Calculation.Workers),
		calc.WithLogger(logger.Logger),
	}, nil
}

// modelOptions maps the mesh section of the config onto model options.
func modelOptions() ([]model.Option, error) {
	merge, err := mesh.ParseCombinePolicy(cfg.Mesh.Merge)
	if err != nil {
		return nil, err
	}
	return []model.Option{
		model.WithLogger(logger.Logger),
		model.WithDefaultMerge(merge),
		model.WithMeshOptions(
			mesh.WithNeighbors(cfg.Mesh.Neighbors),
			mesh.WithPower(cfg.Mesh.Power),
		),
	}, nil
}

func loadModel(path string) (*model.Handler, error) {
	if path == "" {
		return nil, fmt.Errorf("--model is required")
	}
	opts, err := modelOptions()
	if err != nil {
		return nil, err
	}
	h, err := model.Load(path, opts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("model loaded",
		zap.String("path", path),
		zap.Int("samples", h.Mesh().Len()),
		zap.Int("drives", h.Drives().Len()))
	return h, nil
}

// openSink returns the result sink for a command: the file at path, or w
// when path is empty, teed into the logger at debug level. The returned
// close function must be called once the results are written.
func openSink(w io.Writer, path, format string) (result.Handler, func() error, error) {
	if path == "" {
		path = cfg.Output.Path
	}
	if format == "" {
		if path != "" {
			format = string(result.FormatForPath(path))
		} else {
			format = cfg.Output.Format
		}
	}
	f, err := result.ParseFormat(format)
	if err != nil {
		return nil, nil, err
	}

	logged := result.NewLogHandler(logger.Logger)
	logged.SetLevel(zap.NewAtomicLevelAt(zap.DebugLevel))

	if path == "" {
		var out result.Handler = result.NewCSVWriter(w)
		if f == result.FormatJSONL {
			out = result.NewJSONLinesWriter(w)
		}
		return result.Multi{out, logged}, func() error { return nil }, nil
	}

	fh, err := result.OpenFile(path, f)
	if err != nil {
		return nil, nil, err
	}
	return result.Multi{fh, logged}, fh.Close, nil
}

// readQueries loads a query CSV file.
func readQueries(path string) ([]calc.Query, error) {
	if path == "" {
		return nil, fmt.Errorf("--queries is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	qs, err := calc.ReadQueries(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return qs, nil
}
