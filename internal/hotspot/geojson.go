package hotspot

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CRS84 is the coordinate reference identifier stamped on every collection.
const CRS84 = "urn:ogc:def:crs:OGC:1.3:CRS84"

// FeatureCollection converts hotpoints into point features. Each feature
// carries the detection code and whichever enrichment properties were found.
func FeatureCollection(points []Hotpoint) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{
		"crs": map[string]any{
			"type":       "name",
			"properties": map[string]any{"name": CRS84},
		},
	}
	for _, p := range points {
		f := geojson.NewFeature(orb.Point{p.Lon, p.Lat})
		f.Properties["code"] = p.Code
		for k, v := range p.Properties {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc
}
