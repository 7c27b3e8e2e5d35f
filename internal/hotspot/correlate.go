package hotspot

import (
	"fmt"
	"io"
	"sort"
)

// Key identifies a grid cell.
type Key struct {
	Row int
	Col int
}

// Hotpoint is a cell flagged by the primary band. Properties holds the
// enrichment values that were found for it.
type Hotpoint struct {
	Key
	Code       float64
	Lon        float64
	Lat        float64
	Properties map[string]float64
}

// Set accumulates hotpoints for one product time.
type Set struct {
	header    GridHeader
	tolerance float64
	points    map[Key]*Hotpoint
}

// Detect reads the primary band and creates a hotpoint for every cell that
// is not no-data and equals code.
func Detect(r io.Reader, code, tolerance float64) (*Set, error) {
	s := &Set{tolerance: tolerance, points: make(map[Key]*Hotpoint)}
	var pending []Key
	h, err := ReadGrid(r, func(row, col int, v float64) {
		if v != code {
			return
		}
		pending = append(pending, Key{Row: row, Col: col})
	})
	if err != nil {
		return nil, fmt.Errorf("primary band: %w", err)
	}
	s.header = h
	if h.IsNoData(code, tolerance) {
		// A detection code equal to the sentinel can never qualify.
		return s, nil
	}
	for _, k := range pending {
		s.points[k] = &Hotpoint{
			Key:  k,
			Code: code,
			Lon:  h.Longitude(k.Col),
			Lat:  h.Latitude(k.Row),
		}
	}
	return s, nil
}

// Header returns the primary band header.
func (s *Set) Header() GridHeader { return s.header }

// Len returns the number of hotpoints.
func (s *Set) Len() int { return len(s.points) }

// Enrich reads an enrichment band and attaches its non-no-data values under
// property to existing hotpoints. Cells without a hotpoint are ignored. It
// returns how many hotpoints were enriched.
func (s *Set) Enrich(r io.Reader, property string) (int, error) {
	type cell struct {
		key Key
		v   float64
	}
	var hits []cell
	h, err := ReadGrid(r, func(row, col int, v float64) {
		k := Key{Row: row, Col: col}
		if _, ok := s.points[k]; ok {
			hits = append(hits, cell{key: k, v: v})
		}
	})
	if err != nil {
		return 0, fmt.Errorf("%s band: %w", property, err)
	}
	if !h.SameGrid(s.header) {
		return 0, fmt.Errorf("%s band: grid %dx%d does not match primary %dx%d", property, h.Cols, h.Rows, s.header.Cols, s.header.Rows)
	}
	n := 0
	for _, c := range hits {
		if h.IsNoData(c.v, s.tolerance) {
			continue
		}
		p := s.points[c.key]
		if p.Properties == nil {
			p.Properties = make(map[string]float64)
		}
		p.Properties[property] = c.v
		n++
	}
	return n, nil
}

// Points returns the hotpoints ordered by row, then column.
func (s *Set) Points() []Hotpoint {
	out := make([]Hotpoint, 0, len(s.points))
	for _, p := range s.points {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}
