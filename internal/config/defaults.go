package config

import (
	"fmt"
	"strconv"
)

const (
	defaultConfigPath         = "~/.config/gncimport/config.toml"
	projectConfigName         = "gncimport.toml"
	defaultSourceDir          = "/source"
	defaultWorkingDir         = "~/.local/share/gncimport/working"
	defaultPublishDir         = "~/.local/share/gncimport/import"
	defaultStateDir           = "~/.local/share/gncimport/state"
	defaultLogDir             = "~/.local/share/gncimport/logs"
	defaultPollIntervalSecs   = 30
	defaultInitialDelayMillis = 500
	defaultWatchDebounceMs    = 2000
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	defaultOutputLimitBytes   = 1024 * 1024
	defaultNcpdqThreads       = 4
	defaultRasterBucket       = 10
	defaultArchiveBucket      = 60
	defaultHotspotPrefix      = "gnc-goesrlevel2-hotspots"
	defaultObjectStorePrefix  = "gncimport"

	// DefaultSourceSRS is the GOES-East fixed grid.
	DefaultSourceSRS = "+proj=geos +lon_0=-75 +h=35786023 +sweep=x +a=6378137 +b=6356752.31414"
	// DefaultTargetSRS is geographic WGS84.
	DefaultTargetSRS = "+proj=longlat +datum=WGS84 +no_defs +ellps=WGS84 +towgs84=0,0,0"
)

// Stream kinds.
const (
	KindRaster  = "raster"
	KindArchive = "archive"
)

// File name time formats.
const (
	TimeFormatOrdinalSpan = "ordinal-span"
	TimeFormatCalendar    = "calendar"
)

// Watermark backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// PostprocessHotspots identifies the fire-detection point extractor.
const PostprocessHotspots = "hotspots"

// Default returns a Config populated with repository defaults. Streams are
// filled in during normalization when the file declares none.
func Default() Config {
	return Config{
		Paths: Paths{
			SourceDir:  defaultSourceDir,
			WorkingDir: defaultWorkingDir,
			PublishDir: defaultPublishDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Workflow: Workflow{
			PollIntervalSeconds: defaultPollIntervalSecs,
			InitialDelayMillis:  defaultInitialDelayMillis,
			WatchDebounceMillis: defaultWatchDebounceMs,
		},
		Watermark: Watermark{
			Backend: BackendFile,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Tools: Tools{
			Ncpdq:            "ncpdq",
			Gdalwarp:         "gdalwarp",
			GdalTranslate:    "gdal_translate",
			Ogr2ogr:          "ogr2ogr",
			Tar:              "tar",
			OutputLimitBytes: defaultOutputLimitBytes,
			NcpdqThreads:     defaultNcpdqThreads,
		},
		Hotspots: Hotspots{
			PrimaryVariable: "DQF",
			DetectionCode:   0,
			VectorPrefix:    defaultHotspotPrefix,
		},
		ObjectStore: ObjectStore{
			Prefix: defaultObjectStorePrefix,
			UseSSL: true,
		},
	}
}

func defaultEnrichment() []Enrichment {
	return []Enrichment{
		{Variable: "Power", Property: "power"},
		{Variable: "Temp", Property: "temperature"},
		{Variable: "Area", Property: "area"},
	}
}

// DefaultStreams returns the three GeoNetCast products: the sixteen ABI cloud
// and moisture imagery bands, the Level 2 fire detection product, and the
// INPE fire vector archive (disabled).
func DefaultStreams() []Stream {
	cmiSources := make([]Source, 0, 16)
	for band := 1; band <= 16; band++ {
		cmiSources = append(cmiSources, Source{
			Tag:       strconv.Itoa(band),
			Dir:       fmt.Sprintf("Band%02d", band),
			Variables: []Variable{{Name: "CMI", Tag: fmt.Sprintf("CMI-%02d", band)}},
		})
	}
	disabled := false
	return []Stream{
		{
			Name:          "cmi",
			Code:          "gnc-cmi",
			Kind:          KindRaster,
			SourceDir:     "GOES-R-CMI-Imagery",
			Prefix:        "OR_ABI-L2-CMIPF-",
			Suffix:        ".nc",
			TimeFormat:    TimeFormatOrdinalSpan,
			BucketMinutes: defaultRasterBucket,
			Projection:    Projection{Source: DefaultSourceSRS, Target: DefaultTargetSRS},
			Sources:       cmiSources,
		},
		{
			Name:          "goesr-level2",
			Code:          "gnc-goesrlevel2",
			Kind:          KindRaster,
			SourceDir:     "GOES-R-Level-2-Products",
			Prefix:        "OR_ABI-L2-FDCF-",
			Suffix:        ".nc",
			TimeFormat:    TimeFormatOrdinalSpan,
			BucketMinutes: defaultRasterBucket,
			Projection:    Projection{Source: DefaultSourceSRS, Target: DefaultTargetSRS},
			Sources: []Source{{
				Tag: "FDCF",
				Dir: "FDCF",
				Variables: []Variable{
					{Name: "DQF", Tag: "DQF"},
					{Name: "Power", Tag: "Power"},
					{Name: "Temp", Tag: "Temp"},
					{Name: "Area", Tag: "Area"},
				},
				Postprocess: PostprocessHotspots,
			}},
		},
		{
			Name:                 "inpe",
			Code:                 "gnc-subp-inpe_inpe",
			Kind:                 KindArchive,
			Enabled:              &disabled,
			SourceDir:            "INPE",
			Prefix:               "INPE_MVF_",
			Suffix:               ".tar.gz",
			TimeFormat:           TimeFormatCalendar,
			CalendarOffset:       len("INPE_MVF_"),
			BucketMinutes:        defaultArchiveBucket,
			InitialLookbackHours: 24,
			Sources:              []Source{{Tag: "time", Dir: "."}},
		},
	}
}
