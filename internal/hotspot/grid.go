package hotspot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const maxTokenSize = 1024 * 1024

// GridHeader is the parsed header of an ASCII grid dump.
type GridHeader struct {
	Cols      int
	Rows      int
	XLL       float64
	YLL       float64
	CellSize  float64
	CellSizeY float64
	NoData    float64
	HasNoData bool
}

// IsNoData reports whether v is the header sentinel. Comparison is exact
// unless tolerance is positive. NaN is always treated as no-data.
func (h GridHeader) IsNoData(v, tolerance float64) bool {
	if math.IsNaN(v) {
		return true
	}
	if !h.HasNoData {
		return false
	}
	if v == h.NoData {
		return true
	}
	return tolerance > 0 && math.Abs(v-h.NoData) <= tolerance
}

// Longitude returns the x coordinate of column c.
func (h GridHeader) Longitude(c int) float64 {
	return h.XLL + h.CellSize*float64(c)
}

// Latitude returns the y coordinate of row r, counting rows from the top.
func (h GridHeader) Latitude(r int) float64 {
	return h.YLL + h.CellSizeY*float64(h.Rows-1-r)
}

// SameGrid reports whether two headers describe the same cell layout.
func (h GridHeader) SameGrid(o GridHeader) bool {
	return h.Cols == o.Cols && h.Rows == o.Rows
}

// ReadGrid parses an ASCII grid from r and calls visit for every cell in
// row-major order, top row first. Header keys are matched case-insensitively.
func ReadGrid(r io.Reader, visit func(row, col int, value float64)) (GridHeader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxTokenSize)
	sc.Split(bufio.ScanWords)

	var (
		h                    GridHeader
		haveCols, haveRows   bool
		haveX, haveY, haveCS bool
		dx, dy               float64
		pending              string
	)
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if isNumeric(key) {
			pending = sc.Text()
			break
		}
		if !sc.Scan() {
			return h, fmt.Errorf("grid header: missing value for %q", key)
		}
		raw := sc.Text()
		switch key {
		case "ncols", "nrows":
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return h, fmt.Errorf("grid header: invalid %s %q", key, raw)
			}
			if key == "ncols" {
				h.Cols, haveCols = n, true
			} else {
				h.Rows, haveRows = n, true
			}
		default:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return h, fmt.Errorf("grid header: invalid %s %q", key, raw)
			}
			switch key {
			case "xllcorner", "xllcenter":
				h.XLL, haveX = v, true
			case "yllcorner", "yllcenter":
				h.YLL, haveY = v, true
			case "cellsize":
				h.CellSize, h.CellSizeY, haveCS = v, v, true
			case "dx":
				dx = v
			case "dy":
				dy = v
			case "nodata_value":
				h.NoData, h.HasNoData = v, true
			default:
				return h, fmt.Errorf("grid header: unknown key %q", key)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return h, fmt.Errorf("read grid: %w", err)
	}
	if !haveCS && dx != 0 && dy != 0 {
		h.CellSize, h.CellSizeY, haveCS = dx, dy, true
	}
	if !haveCols || !haveRows || !haveX || !haveY || !haveCS {
		return h, errors.New("grid header: ncols, nrows, origin and cell size are required")
	}

	total := h.Cols * h.Rows
	n := 0
	handle := func(tok string) error {
		if n >= total {
			return fmt.Errorf("grid data: more than %d values", total)
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("grid data: row %d: invalid value %q", n/h.Cols, tok)
		}
		visit(n/h.Cols, n%h.Cols, v)
		n++
		return nil
	}
	if pending != "" {
		if err := handle(pending); err != nil {
			return h, err
		}
	}
	for sc.Scan() {
		if err := handle(sc.Text()); err != nil {
			return h, err
		}
	}
	if err := sc.Err(); err != nil {
		return h, fmt.Errorf("read grid: %w", err)
	}
	if n != total {
		return h, fmt.Errorf("grid data: got %d values, want %d", n, total)
	}
	return h, nil
}

func isNumeric(tok string) bool {
	_, err := strconv.ParseFloat(tok, 64)
	return err == nil
}
