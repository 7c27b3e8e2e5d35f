// Package hotspot turns co-registered fire detection rasters into point
// features.
//
// Each band is exported to an ESRI ASCII grid with gdal_translate and read
// cell by cell. The primary quality band decides which cells exist: a cell
// holding the detection code becomes a hotpoint. Enrichment bands (power,
// temperature, area) only attach values to hotpoints that already exist, so
// the join is a sparse left join keyed by grid row and column. The result is
// written as a GeoJSON FeatureCollection in CRS84.
package hotspot
