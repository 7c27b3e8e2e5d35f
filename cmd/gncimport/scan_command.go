package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gncimport/internal/config"
	"gncimport/internal/daemon"
	"gncimport/internal/logging"
	"gncimport/internal/publish"
	"gncimport/internal/timecodec"
	"gncimport/internal/toolrun"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var streams []string
	var limit int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List source files waiting to be imported",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			selected, err := selectStreams(cfg, streams)
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			// Pipelines built here never run; the executor and publisher are inert.
			nop := logging.NewNop()
			pipelines, err := daemon.NewPipelines(cfg, store, toolrun.New(cfg.Tools.OutputLimitBytes, nop), publish.New(cfg.Paths.PublishDir, nop), nop, selected...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for i, p := range pipelines {
				if i > 0 {
					fmt.Fprintln(out)
				}
				for _, line := range renderSectionHeader(streamLabel(p.Name()), colorize) {
					fmt.Fprintln(out, line)
				}
				files, err := p.Pending(cmd.Context())
				if err != nil {
					return fmt.Errorf("scan %s: %w", p.Name(), err)
				}
				if len(files) == 0 {
					fmt.Fprintln(out, "No pending files")
					continue
				}
				stream, _ := cfg.StreamByName(p.Name())
				shown := files
				if limit > 0 && len(shown) > limit {
					shown = shown[:limit]
				}
				rows := make([][]string, 0, len(shown))
				for idx, f := range shown {
					rows = append(rows, []string{
						strconv.Itoa(idx + 1),
						f.Tag,
						formatInstant(f.CenterTime),
						timecodec.PublishStamp(f.CenterTime, stream.BucketMinutes),
						f.Name,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"#", "Tag", "Center", "Stamp", "File"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				if len(shown) < len(files) {
					fmt.Fprintf(out, "... %d more\n", len(files)-len(shown))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&streams, "stream", "s", nil, "Streams to scan (defaults to enabled streams)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum files listed per stream (0 for all)")
	return cmd
}

func selectStreams(cfg *config.Config, names []string) ([]config.Stream, error) {
	if len(names) == 0 {
		return cfg.ActiveStreams(), nil
	}
	out := make([]config.Stream, 0, len(names))
	for _, name := range names {
		s, ok := cfg.StreamByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown stream %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}
