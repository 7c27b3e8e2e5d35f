package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gncimport/internal/services"
	"gncimport/internal/timecodec"
)

// Source is one sub-stream directory relative to the scan root.
type Source struct {
	Tag string
	Dir string
}

// SourceFile is a candidate discovered by Scan.
type SourceFile struct {
	Path       string
	Name       string
	CenterTime time.Time
	Tag        string
}

// Scan lists every source directory under root and returns the files newer
// than the watermark recorded for their tag, sorted by center time, then
// name, then tag. A missing directory contributes nothing; any other listing
// failure aborts the scan.
func Scan(ctx context.Context, root string, sources []Source, contract timecodec.Contract, state map[string]time.Time) ([]SourceFile, error) {
	var files []SourceFile
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := filepath.Join(root, src.Dir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, services.Wrap(services.ErrTransient, "scan", "list directory", fmt.Sprintf("list %s", dir), err)
		}
		after, seen := state[src.Tag]
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			center, ok := timecodec.CenterTime(name, contract)
			if !ok {
				continue
			}
			if seen && !center.After(after) {
				continue
			}
			files = append(files, SourceFile{
				Path:       filepath.Join(dir, name),
				Name:       name,
				CenterTime: center,
				Tag:        src.Tag,
			})
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if !a.CenterTime.Equal(b.CenterTime) {
			return a.CenterTime.Before(b.CenterTime)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Tag < b.Tag
	})
	return files, nil
}
