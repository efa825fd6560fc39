package result

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chazu/cctools/pkg/geom"
	"github.com/chazu/cctools/pkg/mesh"
)

func sample(seq int) CalcResult {
	return CalcResult{
		RunID:      uuid.MustParse("2f1d3f64-0b6e-4c4a-9d55-8d2c3c0f7a10"),
		Seq:        seq,
		Point:      geom.Vec3{X: 5, Y: 5, Z: 5},
		Drive:      "d1",
		X:          10,
		Component:  mesh.Magnitude,
		MeshValue:  3.7416573867739413,
		Correction: 0.2,
		Value:      3.9416573867739413,
		Rule:       "additive",
		Provenance: Provenance{
			Neighbors:  []mesh.Neighbor{{Pos: geom.Vec3{X: 5, Y: 5, Z: 5}, Weight: 1}},
			Parameters: "Offset: 0.1, Slope: 0.01",
		},
	}
}

type failing struct{ err error }

func (f failing) Accept(CalcResult) error { return f.err }

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestMemoryOwnsResults(t *testing.T) {
	m := NewMemory()
	r := sample(0)
	require.NoError(t, m.Accept(r))

	r.Provenance.Neighbors[0].Weight = 42
	got := m.Results()
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Provenance.Neighbors[0].Weight)

	got[0].Value = -1
	assert.Equal(t, 3.9416573867739413, m.Results()[0].Value)

	m.Reset()
	assert.Equal(t, 0, m.Len())
}

func TestMemoryConcurrentAccept(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.Accept(sample(i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())
}

func TestNullAcceptsEverything(t *testing.T) {
	assert.NoError(t, Null{}.Accept(sample(0)))
}

func TestMultiStopsAtFirstFailure(t *testing.T) {
	first, last := NewMemory(), NewMemory()
	cause := errors.New("boom")
	m := Multi{first, failing{cause}, last}

	err := m.Accept(sample(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHandler))
	assert.True(t, errors.Is(err, cause))

	var he *HandlerError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, 3, he.Seq)
	assert.Equal(t, 1, first.Len())
	assert.Equal(t, 0, last.Len())
}

func TestFuncWrapsErrors(t *testing.T) {
	err := Func(func(CalcResult) error { return errors.New("nope") }).Accept(sample(7))
	var he *HandlerError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "func", he.Sink)
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf)
	require.NoError(t, w.Accept(sample(0)))
	require.NoError(t, w.Accept(sample(1)))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, "1", rows[2][1])
	assert.Equal(t, "MAGNITUDE", rows[1][7])
	assert.Equal(t, "3.9416573867739413", rows[1][10])
}

func TestCSVWriterFailureIsHandlerError(t *testing.T) {
	err := NewCSVWriter(brokenWriter{}).Accept(sample(4))
	assert.True(t, errors.Is(err, ErrHandler), "err = %v", err)
}

func TestJSONLinesWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLinesWriter(&buf)
	require.NoError(t, w.Accept(sample(0)))
	require.NoError(t, w.Accept(sample(1)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &decoded))
	assert.Equal(t, "MAGNITUDE", decoded["component"])
	assert.Equal(t, []any{5.0, 5.0, 5.0}, decoded["point"])
	assert.Equal(t, 1.0, decoded["seq"])
}

func TestJSONLinesWriterFailure(t *testing.T) {
	err := NewJSONLinesWriter(brokenWriter{}).Accept(sample(0))
	assert.True(t, errors.Is(err, ErrHandler))
}

func TestLogHandler(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := NewLogHandler(zap.New(core))
	require.NoError(t, h.Accept(sample(2)))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "calc result", entry.Message)
	assert.Equal(t, int64(2), entry.ContextMap()["seq"])
	assert.Equal(t, "d1", entry.ContextMap()["drive"])
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	for _, tt := range []struct {
		name   string
		format Format
	}{
		{"out/results.csv", FormatCSV},
		{"out/results.jsonl", FormatJSONL},
	} {
		path := filepath.Join(dir, tt.name)
		assert.Equal(t, tt.format, FormatForPath(path))

		fh, err := OpenFile(path, tt.format)
		require.NoError(t, err)
		require.NoError(t, fh.Accept(sample(0)))
		require.NoError(t, fh.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "d1")
	}

	_, err := OpenFile(filepath.Join(dir, "x.bin"), Format("bin"))
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSONL, f)
	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
