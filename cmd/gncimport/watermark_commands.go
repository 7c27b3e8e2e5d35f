package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gncimport/internal/config"
	"gncimport/internal/watermark"
)

func newWatermarkCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Inspect or rewind stream progress cursors",
	}
	cmd.AddCommand(newWatermarkShowCommand(ctx))
	cmd.AddCommand(newWatermarkResetCommand(ctx))
	return cmd
}

func newWatermarkShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show [stream...]",
		Short: "Print the cursor of every source tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			streams := cfg.Streams
			if len(args) > 0 {
				if streams, err = selectStreams(cfg, args); err != nil {
					return err
				}
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var rows [][]string
			for _, s := range streams {
				state, err := store.Load(cmd.Context(), s.Name)
				if err != nil {
					return fmt.Errorf("load watermark for %s: %w", s.Name, err)
				}
				for _, tag := range streamTags(s, state) {
					cursor, ok := state[tag]
					value := "-"
					if ok {
						value = formatInstant(cursor)
					}
					rows = append(rows, []string{s.Name, tag, value})
				}
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No watermarks")
				return nil
			}
			fmt.Fprintln(out, renderTable([]string{"Stream", "Tag", "Cursor"}, rows, nil))
			return nil
		},
	}
}

func newWatermarkResetCommand(ctx *commandContext) *cobra.Command {
	var streamName string
	var tags []string
	var to string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear or rewind cursors so files are imported again",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stream, ok := cfg.StreamByName(strings.TrimSpace(streamName))
			if !ok {
				return fmt.Errorf("unknown stream %q", streamName)
			}
			var target time.Time
			if strings.TrimSpace(to) != "" {
				if target, err = parseInstant(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}
			running, err := daemonRunning(cfg)
			if err != nil {
				return err
			}
			if running {
				return fmt.Errorf("daemon is running; stop it before resetting watermarks")
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			state, err := store.Load(cmd.Context(), stream.Name)
			if err != nil {
				return fmt.Errorf("load watermark: %w", err)
			}
			if state == nil {
				state = watermark.State{}
			}
			if len(tags) == 0 {
				tags = streamTags(stream, state)
			}
			for _, tag := range tags {
				if target.IsZero() {
					delete(state, tag)
				} else {
					state[tag] = target
				}
			}
			if err := store.Save(cmd.Context(), stream.Name, state); err != nil {
				return fmt.Errorf("save watermark: %w", err)
			}

			out := cmd.OutOrStdout()
			if target.IsZero() {
				fmt.Fprintf(out, "Cleared %d cursor(s) for %s\n", len(tags), stream.Name)
			} else {
				fmt.Fprintf(out, "Set %d cursor(s) for %s to %s\n", len(tags), stream.Name, formatInstant(target))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&streamName, "stream", "s", "", "Stream to reset")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Source tags to reset (defaults to all)")
	cmd.Flags().StringVar(&to, "to", "", "Rewind to this UTC time instead of clearing (RFC 3339 or 2006-01-02_15-04)")
	_ = cmd.MarkFlagRequired("stream")
	return cmd
}

// streamTags returns the configured source tags followed by any stale tags
// still present in state.
func streamTags(s config.Stream, state watermark.State) []string {
	seen := make(map[string]struct{}, len(s.Sources))
	out := make([]string, 0, len(s.Sources))
	for _, src := range s.Sources {
		seen[src.Tag] = struct{}{}
		out = append(out, src.Tag)
	}
	var extra []string
	for tag := range state {
		if _, ok := seen[tag]; !ok {
			extra = append(extra, tag)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
