// Package patcher runs patches in dependency order against a shared context.
package patcher

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
	"github.com/pgaskin/fingerpatch/patch"
)

// Log is used to log debugging messages.
var Log = func(format string, a ...interface{}) {}

// Warn is used to log warnings, such as skipped patches.
var Warn = func(format string, a ...interface{}) {}

// PatchError is returned when a patch fails.
type PatchError struct {
	Patch *patch.Patch
	Err   error
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("patch %q: %v", e.Patch.Name, e.Err)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

// ErrMissingOption is returned when a required option has no value.
var ErrMissingOption = errors.New("missing required option")

// Patcher runs patches. The zero value is not usable; use New.
type Patcher struct {
	ctx   *patch.Context
	force bool

	g       graph.Graph[string, string]
	patches map[string]*patch.Patch
	order   map[string]int
	skipped []*patch.Patch
	ran     bool
}

// New creates a new Patcher for ctx.
func New(ctx *patch.Context) *Patcher {
	return &Patcher{
		ctx:     ctx,
		g:       graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
		patches: map[string]*patch.Patch{},
		order:   map[string]int{},
	}
}

// Force sets whether patches should be added even if they are not compatible
// with the target package in the context.
func (p *Patcher) Force(force bool) {
	p.force = force
}

// Add adds patches and their dependencies. Patches which are not compatible
// with the target package are skipped (and listed by Skipped) unless forced;
// dependencies are added regardless. If Add returns an error, the Patcher
// should not be used.
func (p *Patcher) Add(ps ...*patch.Patch) error {
	for _, pt := range ps {
		if !pt.Accepts(p.ctx.Package, p.ctx.Version) {
			if !p.force {
				Warn("skipping incompatible patch %q (target %s %s, compatible with %v)", pt.Name, p.ctx.Package, p.ctx.Version, pt.Compatible)
				p.skipped = append(p.skipped, pt)
				continue
			}
			Warn("forcing incompatible patch %q (target %s %s, compatible with %v)", pt.Name, p.ctx.Package, p.ctx.Version, pt.Compatible)
		}
		if err := p.add(pt); err != nil {
			return fmt.Errorf("add %q: %w", pt.Name, err)
		}
	}
	return nil
}

func (p *Patcher) add(pt *patch.Patch) error {
	if pt.Name == "" {
		return errors.New("unnamed patch")
	}
	if x, ok := p.patches[pt.Name]; ok {
		if x != pt {
			return fmt.Errorf("different patch with the same name %q already added", pt.Name)
		}
		return nil
	}
	if err := p.g.AddVertex(pt.Name); err != nil {
		return err
	}
	p.patches[pt.Name] = pt
	p.order[pt.Name] = len(p.order)
	Log("added patch %q", pt.Name)

	for _, dep := range pt.Dependencies {
		if err := p.add(dep); err != nil {
			return fmt.Errorf("dependency %q: %w", dep.Name, err)
		}
		if err := p.g.AddEdge(dep.Name, pt.Name); err != nil {
			if errors.Is(err, graph.ErrEdgeCreatesCycle) {
				return fmt.Errorf("dependency cycle between %q and %q: %w", pt.Name, dep.Name, err)
			}
			if !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return err
			}
		}
	}
	return nil
}

// Skipped returns the patches which were skipped by Add.
func (p *Patcher) Skipped() []*patch.Patch {
	return append([]*patch.Patch(nil), p.skipped...)
}

// Order returns the patches in the order they will be executed. Every patch
// comes after its dependencies, and patches which are ready at the same time
// are ordered by when they were added.
func (p *Patcher) Order() ([]*patch.Patch, error) {
	names, err := graph.StableTopologicalSort(p.g, func(a, b string) bool {
		return p.order[a] < p.order[b]
	})
	if err != nil {
		return nil, fmt.Errorf("sort patches: %w", err)
	}
	ps := make([]*patch.Patch, len(names))
	for i, n := range names {
		ps[i] = p.patches[n]
	}
	return ps, nil
}

// Execute runs every patch once, in order. Before each patch, its
// fingerprints are resolved. After all patches have been executed (or one has
// failed), every executed patch is closed in the same order, then any
// documents left open are closed.
//
// The first error is returned, as a *PatchError if it came from a patch. If
// an error is returned, the context should be discarded.
func (p *Patcher) Execute() error {
	if p.ran {
		return errors.New("patcher already executed")
	}
	p.ran = true

	ps, err := p.Order()
	if err != nil {
		return err
	}

	for _, pt := range ps {
		for _, o := range pt.Options {
			if o.Missing() {
				return &PatchError{pt, fmt.Errorf("%w %q", ErrMissingOption, o.OptionKey())}
			}
		}
	}

	var executed []*patch.Patch
	var failed error
	for _, pt := range ps {
		Log("executing patch %q", pt.Name)
		for _, fp := range pt.Fingerprints {
			if r, err := p.ctx.Resolve(fp); err != nil {
				Log("  fingerprint %s: not found", fp.Name())
			} else {
				Log("  fingerprint %s: %s", fp.Name(), r.Method.ID())
			}
		}
		if pt.Execute != nil {
			if err := pt.Execute(p.ctx); err != nil {
				failed = &PatchError{pt, err}
				Log("  failed: %v", err)
				break
			}
		}
		executed = append(executed, pt)
	}

	for _, pt := range executed {
		if pt.Close == nil {
			continue
		}
		Log("closing patch %q", pt.Name)
		if err := pt.Close(p.ctx); err != nil {
			Log("  failed: %v", err)
			if failed == nil {
				failed = &PatchError{pt, fmt.Errorf("close: %w", err)}
			}
		}
	}

	if err := p.ctx.Resources.CloseAll(); err != nil && failed == nil {
		failed = fmt.Errorf("close resources: %w", err)
	}
	return failed
}
