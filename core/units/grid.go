package units

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/FocuswithJustin/convertkit/core/errors"
	"github.com/FocuswithJustin/convertkit/internal/workerpool"
)

// GridStats summarizes a grid conversion.
type GridStats struct {
	Rows      int `json:"rows"`
	Cells     int `json:"cells"`
	Converted int `json:"converted"`
	Unchanged int `json:"unchanged"`
}

func (s *GridStats) add(o GridStats) {
	s.Rows += o.Rows
	s.Cells += o.Cells
	s.Converted += o.Converted
	s.Unchanged += o.Unchanged
}

// ConvertGrid converts every numeric cell of grid from one unit to another.
// Cells that do not parse as numbers, and every cell when the pair is not in
// the table, are copied through unchanged. The result has the same shape as
// grid; grid itself is not modified.
func ConvertGrid(grid [][]string, from, to string, mode Mode) [][]string {
	out, _ := ConvertGridWithStats(grid, from, to, mode)
	return out
}

// ConvertGridWithStats is ConvertGrid plus per-cell accounting.
func ConvertGridWithStats(grid [][]string, from, to string, mode Mode) ([][]string, GridStats) {
	fn, _ := Lookup(from, to)

	out := make([][]string, len(grid))
	var stats GridStats
	for i, row := range grid {
		var rs GridStats
		out[i], rs = convertRow(row, fn, mode)
		stats.add(rs)
	}
	return out, stats
}

// convertRow converts one row. A nil fn leaves every cell as is.
func convertRow(row []string, fn Formula, mode Mode) ([]string, GridStats) {
	out := make([]string, len(row))
	stats := GridStats{Rows: 1, Cells: len(row)}
	for j, cell := range row {
		out[j] = cell
		if fn == nil {
			continue
		}
		v, ok := ParseValue(cell)
		if !ok {
			continue
		}
		out[j] = Format(fn(v), mode)
		stats.Converted++
	}
	stats.Unchanged = stats.Cells - stats.Converted
	return out, stats
}

type rowJob struct {
	index int
	row   []string
}

type rowResult struct {
	index int
	row   []string
	stats GridStats
}

// ConvertGridParallel converts rows concurrently on a worker pool. progress,
// if non-nil, is called from the calling goroutine after each finished row.
// On cancellation the partial result is discarded and ctx.Err() returned.
func ConvertGridParallel(ctx context.Context, grid [][]string, from, to string, mode Mode, workers int, progress func(done, total int)) ([][]string, GridStats, error) {
	fn, _ := Lookup(from, to)
	total := len(grid)

	pool := workerpool.New[rowJob, rowResult](workers, total)
	pool.Start(func(j rowJob) rowResult {
		if ctx.Err() != nil {
			return rowResult{index: j.index}
		}
		row, stats := convertRow(j.row, fn, mode)
		return rowResult{index: j.index, row: row, stats: stats}
	})

	for i, row := range grid {
		if ctx.Err() != nil {
			break
		}
		pool.Submit(rowJob{index: i, row: row})
	}
	pool.Close()

	out := make([][]string, total)
	var stats GridStats
	done := 0
	for res := range pool.Results() {
		out[res.index] = res.row
		stats.add(res.stats)
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// DecodeGridJSON decodes a JSON array of string arrays. Anything else,
// including a top-level null or object, is a MalformedInputError.
func DecodeGridJSON(data []byte) ([][]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.NewMalformedInput("JSON", "empty input", nil)
	}
	if trimmed[0] != '[' {
		return nil, errors.NewMalformedInput("JSON", "grid must be an array of string arrays", nil)
	}

	var grid [][]string
	if err := json.Unmarshal(trimmed, &grid); err != nil {
		return nil, errors.NewMalformedInput("JSON", "grid must be an array of string arrays", err)
	}
	return grid, nil
}

// EncodeGridJSON encodes a grid. Nil rows are written as empty arrays.
func EncodeGridJSON(grid [][]string) ([]byte, error) {
	rows := make([][]string, len(grid))
	for i, row := range grid {
		if row == nil {
			row = []string{}
		}
		rows[i] = row
	}
	return json.Marshal(rows)
}

// ConvertGridJSON is the serialized boundary form of ConvertGrid: it takes
// and returns a JSON grid. Malformed input is reported as an error rather
// than converted to an empty grid.
func ConvertGridJSON(data []byte, from, to string, wholeNumber, roundOff bool) ([]byte, error) {
	grid, err := DecodeGridJSON(data)
	if err != nil {
		return nil, err
	}
	return EncodeGridJSON(ConvertGrid(grid, from, to, ModeFromFlags(wholeNumber, roundOff)))
}
