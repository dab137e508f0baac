package samplelog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// File is a sample log loaded for offline analysis. Rows are kept raw because
// a single file may contain rows written by different schema versions, so
// consumers detect the schema per row rather than per file.
type File struct {
	Header []string
	Rows   [][]string
}

// Read loads the whole log at path. Rows with inconsistent field counts are
// kept; consumers decide per row what they can use.
func Read(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sample log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read sample log: %w", err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("sample log %s is empty", path)
	}
	return &File{Header: all[0], Rows: all[1:]}, nil
}

// Index returns the column index for name in the header, or -1.
func (f *File) Index(name string) int {
	for i, col := range f.Header {
		if col == name {
			return i
		}
	}
	return -1
}

// ParseFloat reads the idx-th cell of row as a float, reporting false on a
// missing or unparsable cell.
func ParseFloat(row []string, idx int) (float64, bool) {
	if idx < 0 || idx >= len(row) {
		return 0, false
	}
	v, err := strconv.ParseFloat(row[idx], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// runEpsilon guards against float formatting noise when comparing successive
// e2e_since_sub_ms values.
const runEpsilon = 1e-6

// SplitRuns partitions rows into contiguous session runs. A new run starts
// when e2e_since_sub_ms decreases: the since-subscribe age is non-decreasing
// within one connection epoch, so a drop marks a reconnect. Rows without an
// e2e value stay in the current run and do not advance the comparison point.
func SplitRuns[T any](rows []T, e2e func(T) (float64, bool)) [][]T {
	if len(rows) == 0 {
		return nil
	}
	var runs [][]T
	var current []T
	prev := 0.0
	prevSeen := false
	for _, row := range rows {
		v, ok := e2e(row)
		if len(current) > 0 && ok && prevSeen && v+runEpsilon < prev {
			runs = append(runs, current)
			current = nil
		}
		current = append(current, row)
		if ok {
			prev = v
			prevSeen = true
		}
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}
