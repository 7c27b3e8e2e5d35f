package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gncimport/internal/fileutil"
	"gncimport/internal/hotspot"
	"gncimport/internal/postprocess"
	"gncimport/internal/publish"
	"gncimport/internal/timecodec"
	"gncimport/internal/toolrun"
)

func newHotspotsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hotspots",
		Short: "Fire detection utilities",
	}
	cmd.AddCommand(newHotspotsExtractCommand(ctx))
	return cmd
}

func newHotspotsExtractCommand(ctx *commandContext) *cobra.Command {
	var rasters []string
	var stamp string
	var outDir string

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract hotspot points from reprojected fire detection rasters",
		Long: "Runs the hotspot extractor on existing rasters. Each --raster is VARIABLE=PATH;\n" +
			"the primary variable is required and enrichment variables are optional.\n" +
			"Inputs are copied first and left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if _, err := time.Parse(timecodec.PublishLayout, stamp); err != nil {
				return fmt.Errorf("--stamp must use the layout %s", timecodec.PublishLayout)
			}
			inputs, err := parseRasterFlags(rasters)
			if err != nil {
				return err
			}
			if _, ok := inputs[cfg.Hotspots.PrimaryVariable]; !ok {
				return fmt.Errorf("--raster %s=PATH is required", cfg.Hotspots.PrimaryVariable)
			}
			logger, err := ctx.commandLogger(cmd)
			if err != nil {
				return err
			}

			workDir, err := os.MkdirTemp(cfg.Paths.WorkingDir, "hotspots-")
			if err != nil {
				return fmt.Errorf("create work dir: %w", err)
			}
			defer os.RemoveAll(workDir)

			copies := make(map[string]string, len(inputs))
			for variable, src := range inputs {
				dst := filepath.Join(workDir, variable+"_"+stamp+".nc")
				if err := fileutil.CopyFile(src, dst); err != nil {
					return fmt.Errorf("copy %s raster: %w", variable, err)
				}
				copies[variable] = dst
			}

			dest := strings.TrimSpace(outDir)
			if dest == "" {
				dest = cfg.Paths.PublishDir
			}
			publisher := publish.New(dest, logger)
			extractor := hotspot.NewExtractor(cfg, toolrun.New(cfg.Tools.OutputLimitBytes, logger), publisher, logger)
			err = extractor.Process(cmd.Context(), postprocess.Input{
				Stream:  "manual",
				Tag:     hotspot.Name,
				Stamp:   stamp,
				Rasters: copies,
				WorkDir: workDir,
			})
			if err != nil {
				return err
			}
			name := fmt.Sprintf("%s_%s.geojson", cfg.Hotspots.VectorPrefix, stamp)
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n", filepath.Join(dest, name))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&rasters, "raster", "r", nil, "Raster input as VARIABLE=PATH (repeatable)")
	cmd.Flags().StringVar(&stamp, "stamp", "", "Publish stamp, e.g. 2021-09-02_19-10")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (defaults to paths.publish_dir)")
	_ = cmd.MarkFlagRequired("stamp")
	return cmd
}

func parseRasterFlags(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		variable, path, ok := strings.Cut(v, "=")
		variable = strings.TrimSpace(variable)
		path = strings.TrimSpace(path)
		if !ok || variable == "" || path == "" {
			return nil, fmt.Errorf("invalid --raster %q (want VARIABLE=PATH)", v)
		}
		if _, dup := out[variable]; dup {
			return nil, fmt.Errorf("--raster %s given twice", variable)
		}
		out[variable] = path
	}
	return out, nil
}
