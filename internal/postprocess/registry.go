// Package postprocess dispatches per-source post-processing steps by name.
//
// A source declares a postprocess identifier; the pipeline looks it up here
// once all variables the processor requires have been produced for a file.
// Unknown identifiers are an error rather than a silent no-op.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownProcessor is returned by Lookup for unregistered identifiers.
var ErrUnknownProcessor = errors.New("unknown postprocessor")

// Input describes the rasters produced for one source file.
type Input struct {
	Stream     string
	Tag        string
	SourceName string
	CenterTime time.Time
	// Stamp is the bucketed time used in published names.
	Stamp string
	// Rasters maps variable name to the working copy of its reprojected raster.
	Rasters map[string]string
	WorkDir string
}

// Processor is one named post-processing strategy.
type Processor interface {
	Name() string
	Required() []string
	Process(ctx context.Context, in Input) error
}

// Registry maps identifiers to processors. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]Processor
}

// NewRegistry returns a registry holding procs.
func NewRegistry(procs ...Processor) *Registry {
	r := &Registry{procs: make(map[string]Processor)}
	for _, p := range procs {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a processor under its Name.
func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[p.Name()] = p
}

// Lookup returns the processor registered under name.
func (r *Registry) Lookup(name string) (Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, name)
	}
	return p, nil
}

// Names lists registered identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.procs))
	for name := range r.procs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Ready reports whether every variable p requires is present in rasters.
func Ready(p Processor, rasters map[string]string) bool {
	for _, v := range p.Required() {
		if _, ok := rasters[v]; !ok {
			return false
		}
	}
	return true
}
