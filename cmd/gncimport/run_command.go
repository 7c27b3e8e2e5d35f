package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"gncimport/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool
	var streams []string
	var development bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the importer daemon, or a single cycle with --once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !once {
				if len(streams) > 0 {
					return fmt.Errorf("--stream requires --once; the daemon runs every enabled stream")
				}
				return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
					LogLevel:    ctx.logLevel(),
					Development: development,
				})
			}

			logger, err := ctx.commandLogger(cmd)
			if err != nil {
				return err
			}
			results, runErr := daemonrun.RunOnce(cmd.Context(), cfg, logger, streams...)
			names := make([]string, 0, len(results))
			for name := range results {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				res := results[name]
				rows = append(rows, []string{
					name,
					strconv.Itoa(res.Processed),
					strconv.Itoa(res.Failed),
					strconv.Itoa(res.Skipped),
				})
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No streams ran")
			} else {
				fmt.Fprintln(out, renderTable(
					[]string{"Stream", "Processed", "Failed", "Skipped"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
				))
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run one cycle per stream and exit")
	cmd.Flags().StringSliceVarP(&streams, "stream", "s", nil, "Limit --once to these streams (disabled streams allowed)")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in daemon logs")
	return cmd
}
