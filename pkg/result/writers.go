package result

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// CSVHeader is the column order written by CSVWriter.
var CSVHeader = []string{
	"run_id", "seq", "x_pos", "y_pos", "z_pos", "drive", "x", "component",
	"mesh_value", "correction", "value", "rule", "extrapolated", "outside_distance",
	"neighbors",
}

// CSVWriter streams results as CSV rows, the default tabular export. The
// header is written before the first row.
type CSVWriter struct {
	mu          sync.Mutex
	w           *csv.Writer
	wroteHeader bool
}

// NewCSVWriter returns a CSV sink on w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

func (c *CSVWriter) Accept(r CalcResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.wroteHeader {
		if err := c.w.Write(CSVHeader); err != nil {
			return sinkError("csv", r.Seq, err)
		}
		c.wroteHeader = true
	}
	if err := c.w.Write(csvRow(r)); err != nil {
		return sinkError("csv", r.Seq, err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return sinkError("csv", r.Seq, err)
	}
	return nil
}

func csvRow(r CalcResult) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return []string{
		r.RunID.String(),
		strconv.Itoa(r.Seq),
		f(r.Point.X), f(r.Point.Y), f(r.Point.Z),
		r.Drive,
		f(r.X),
		r.Component.String(),
		f(r.MeshValue),
		f(r.Correction),
		f(r.Value),
		r.Rule,
		strconv.FormatBool(r.Extrapolated),
		f(r.OutsideDistance),
		strconv.Itoa(len(r.Provenance.Neighbors)),
	}
}

// JSONLinesWriter writes one JSON object per result.
type JSONLinesWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesWriter returns a JSON lines sink on w.
func NewJSONLinesWriter(w io.Writer) *JSONLinesWriter {
	return &JSONLinesWriter{enc: json.NewEncoder(w)}
}

func (j *JSONLinesWriter) Accept(r CalcResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(r); err != nil {
		return sinkError("jsonl", r.Seq, err)
	}
	return nil
}

// LogHandler emits each result as a structured log entry.
type LogHandler struct {
	logger *zap.Logger
	level  zap.AtomicLevel
}

// NewLogHandler logs results at info level on l.
func NewLogHandler(l *zap.Logger) *LogHandler {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogHandler{logger: l, level: zap.NewAtomicLevelAt(zap.InfoLevel)}
}

// SetLevel changes the level results are logged at.
func (h *LogHandler) SetLevel(l zap.AtomicLevel) { h.level = l }

func (h *LogHandler) Accept(r CalcResult) error {
	if ce := h.logger.Check(h.level.Level(), "calc result"); ce != nil {
		ce.Write(
			zap.Stringer("run", r.RunID),
			zap.Int("seq", r.Seq),
			zap.Stringer("point", r.Point),
			zap.String("drive", r.Drive),
			zap.Float64("x", r.X),
			zap.Stringer("component", r.Component),
			zap.Float64("mesh_value", r.MeshValue),
			zap.Float64("correction", r.Correction),
			zap.Float64("value", r.Value),
			zap.String("rule", r.Rule),
			zap.Bool("extrapolated", r.Extrapolated),
		)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// Format selects a file sink encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// ParseFormat accepts "csv", "jsonl" and "json" (alias of jsonl).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "jsonl", "json", "ndjson":
		return FormatJSONL, nil
	}
	return "", fmt.Errorf("result: unknown format %q", s)
}

// FormatForPath picks the format from a file extension, defaulting to CSV.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json", ".ndjson":
		return FormatJSONL
	default:
		return FormatCSV
	}
}

// FileHandler is a file-backed sink that must be closed.
type FileHandler struct {
	Handler
	f *os.File
}

// Close flushes and closes the underlying file.
func (fh *FileHandler) Close() error {
	if err := fh.f.Sync(); err != nil {
		fh.f.Close()
		return fmt.Errorf("result: sync %s: %w", fh.f.Name(), err)
	}
	return fh.f.Close()
}

// OpenFile creates path (and its directory) and returns a sink of the
// given format writing to it.
func OpenFile(path string, format Format) (*FileHandler, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("result: create dir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("result: create %s: %w", path, err)
	}
	var h Handler
	switch format {
	case FormatJSONL:
		h = NewJSONLinesWriter(f)
	case FormatCSV:
		h = NewCSVWriter(f)
	default:
		f.Close()
		return nil, fmt.Errorf("result: unknown format %q", format)
	}
	return &FileHandler{Handler: h, f: f}, nil
}

var (
	_ Handler = (*CSVWriter)(nil)
	_ Handler = (*JSONLinesWriter)(nil)
	_ Handler = (*LogHandler)(nil)
	_ Handler = (*FileHandler)(nil)
)
