// Package toolrun executes the external geospatial tools (ncpdq, gdalwarp,
// gdal_translate, ogr2ogr, tar) without a shell.
//
// Output is captured into bounded buffers. A non-zero exit is a failure
// carrying the tool's stderr; a zero exit with stderr output is a success
// flagged as a warning, because several of these tools print informational
// text to stderr.
package toolrun
