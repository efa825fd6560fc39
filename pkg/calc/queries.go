package calc

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chazu/cctools/pkg/geom"
	"github.com/chazu/cctools/pkg/mesh"
)

// ReadQueries parses a query table. Each row is
//
//	x, y, z [, drive [, x [, component]]]
//
// A first row whose leading cell is not a number is treated as a header.
// Blank lines and lines starting with '#' are skipped.
func ReadQueries(r io.Reader) ([]Query, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	var qs []Query
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return qs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("calc: read queries: %w", err)
		}
		if line == 1 && len(rec) > 0 {
			if _, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64); err != nil {
				continue
			}
		}
		q, err := parseQuery(rec)
		if err != nil {
			return nil, fmt.Errorf("calc: query row %d: %w", line, err)
		}
		qs = append(qs, q)
	}
}

func parseQuery(rec []string) (Query, error) {
	if len(rec) < 3 {
		return Query{}, fmt.Errorf("want at least 3 columns, got %d", len(rec))
	}
	var coords [3]float64
	for i := range coords {
		f, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return Query{}, fmt.Errorf("column %d: %w", i+1, err)
		}
		coords[i] = f
	}
	q := Query{Point: geom.Vec3{X: coords[0], Y: coords[1], Z: coords[2]}}
	if len(rec) > 3 {
		q.Drive = strings.TrimSpace(rec[3])
	}
	if len(rec) > 4 && strings.TrimSpace(rec[4]) != "" {
		x, err := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
		if err != nil {
			return Query{}, fmt.Errorf("column 5: %w", err)
		}
		q.X = x
	}
	if len(rec) > 5 && strings.TrimSpace(rec[5]) != "" {
		c, err := mesh.ParseFieldComponent(rec[5])
		if err != nil {
			return Query{}, fmt.Errorf("column 6: %w", err)
		}
		q.Component = c
	}
	return q, nil
}
