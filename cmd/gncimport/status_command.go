package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"gncimport/internal/config"
	"gncimport/internal/daemon"
	"gncimport/internal/preflight"
	"gncimport/internal/watermark"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, dependency and stream status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			var lines []string

			lines = append(lines, renderSectionHeader("Importer", colorize)...)
			configMsg := ctx.configPath
			if !ctx.configExists {
				configMsg += " (defaults)"
			}
			lines = append(lines, renderStatusLine("Config", statusInfo, configMsg, colorize))
			lines = append(lines, renderStatusLine("Watermark backend", statusInfo, cfg.Watermark.Backend, colorize))
			running, err := daemonRunning(cfg)
			switch {
			case err != nil:
				lines = append(lines, renderStatusLine("Daemon", statusWarn, err.Error(), colorize))
			case running:
				lines = append(lines, renderStatusLine("Daemon", statusOK, "running", colorize))
			default:
				lines = append(lines, renderStatusLine("Daemon", statusInfo, "not running", colorize))
			}
			mirror := "disabled"
			if cfg.ObjectStore.Enabled {
				mirror = fmt.Sprintf("%s/%s", cfg.ObjectStore.Endpoint, cfg.ObjectStore.Bucket)
			}
			lines = append(lines, renderStatusLine("Object store", statusInfo, mirror, colorize))

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
			for _, dep := range preflight.CheckSystemDeps(cfg) {
				if dep.Available {
					lines = append(lines, renderStatusLine(dep.Name, statusOK, dep.Path, colorize))
					continue
				}
				kind := statusError
				if dep.Optional {
					kind = statusWarn
				}
				lines = append(lines, renderStatusLine(dep.Name, kind, dep.Detail, colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Directories", colorize)...)
			for _, r := range preflight.RunAll(cmd.Context(), cfg, nil) {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			for _, line := range lines {
				fmt.Fprintln(out, line)
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			rows := make([][]string, 0, len(cfg.Streams))
			for _, s := range cfg.Streams {
				state, err := store.Load(cmd.Context(), s.Name)
				if err != nil {
					return fmt.Errorf("load watermark for %s: %w", s.Name, err)
				}
				rows = append(rows, []string{
					s.Name,
					s.Kind,
					yesNo(s.Active()),
					strconv.Itoa(len(s.Sources)),
					strconv.Itoa(len(state)),
					formatInstant(latest(state)),
				})
			}
			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Streams", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Stream", "Kind", "Enabled", "Sources", "Cursors", "Latest"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

// daemonRunning probes the daemon lock without holding it.
func daemonRunning(cfg *config.Config) (bool, error) {
	lock := flock.New(filepath.Join(cfg.Paths.StateDir, daemon.LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if !locked {
		return true, nil
	}
	_ = lock.Unlock()
	return false, nil
}

func latest(state watermark.State) time.Time {
	var out time.Time
	for _, t := range state {
		if t.After(out) {
			out = t
		}
	}
	return out
}
