// Package transform turns one claimed source file into published artifacts.
//
// Raster streams extract each configured NetCDF variable with ncpdq,
// reproject it with gdalwarp and publish it as <code>_[<tag>]<stamp>.nc.
// Archive streams unpack a tarred shapefile and convert it to GeoJSON with
// ogr2ogr. All tools run through a toolrun.Executor so tests can substitute
// the binaries.
package transform
