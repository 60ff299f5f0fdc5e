// Package patch defines patches, their options, and the context they run in.
package patch

import (
	"fmt"

	"github.com/pgaskin/fingerpatch/bytecode"
	"github.com/pgaskin/fingerpatch/fingerprint"
	"github.com/pgaskin/fingerpatch/patchlib"
	"github.com/pgaskin/fingerpatch/resource"
)

// Patch is a change to apply. Patches are identified by pointer, and should
// be declared once at package level.
type Patch struct {
	Name        string
	Description string
	// Use is whether the patch is enabled by default.
	Use          bool
	Dependencies []*Patch
	// Compatible is the list of packages the patch works with. If empty, the
	// patch is compatible with everything.
	Compatible []Compatibility
	Options    []AnyOption
	// Fingerprints are resolved against the whole container before Execute is
	// called, and are available from Context.Result.
	Fingerprints []*fingerprint.Fingerprint

	// Execute applies the patch. It is called at most once per run.
	Execute func(ctx *Context) error
	// Close, if not nil, is called after every patch has been executed, and is
	// used to commit anything which depends on the final state of options set
	// by other patches. It is called even if a later patch failed.
	Close func(ctx *Context) error
}

func (p *Patch) String() string {
	return p.Name
}

// Option returns the option with the key, or nil.
func (p *Patch) Option(key string) AnyOption {
	for _, o := range p.Options {
		if o.OptionKey() == key {
			return o
		}
	}
	return nil
}

// Accepts checks whether the patch is compatible with pkg at ver. An empty pkg
// is accepted by every patch.
func (p *Patch) Accepts(pkg, ver string) bool {
	if pkg == "" || len(p.Compatible) == 0 {
		return true
	}
	for _, c := range p.Compatible {
		if c.Accepts(pkg, ver) {
			return true
		}
	}
	return false
}

// Context is shared by every patch in a run. It is owned by the patcher, and
// is only ever used by one patch at a time.
type Context struct {
	Bytecode  *bytecode.Container
	Resources *resource.Editor
	Injector  *patchlib.Injector

	// Package and Version are the target package, if known.
	Package string
	Version string

	results map[*fingerprint.Fingerprint]*fingerprint.Result
}

// NewContext creates a new Context. The resource editor may be nil if there
// are no resources.
func NewContext(c *bytecode.Container, r *resource.Editor) *Context {
	if r == nil {
		r = resource.NewEditor(nil)
	}
	return &Context{
		Bytecode:  c,
		Resources: r,
		Injector:  patchlib.NewInjector(),
		results:   map[*fingerprint.Fingerprint]*fingerprint.Result{},
	}
}

// Resolve resolves a fingerprint against the whole container, and remembers
// the result. If it does not match, any previous result is forgotten and a
// *fingerprint.ResolutionError is returned.
func (c *Context) Resolve(f *fingerprint.Fingerprint) (*fingerprint.Result, error) {
	r, ok := f.Resolve(c.Bytecode)
	return c.store(f, r, ok)
}

// ResolveWithin is like Resolve, but only searches a single method of cls.
func (c *Context) ResolveWithin(f *fingerprint.Fingerprint, m *bytecode.Method, cls *bytecode.Class) (*fingerprint.Result, error) {
	r, ok := f.ResolveMethod(m, cls)
	return c.store(f, r, ok)
}

// ResolveInClass is like Resolve, but only searches the methods of cls.
func (c *Context) ResolveInClass(f *fingerprint.Fingerprint, cls *bytecode.Class) (*fingerprint.Result, error) {
	r, ok := f.ResolveClass(cls)
	return c.store(f, r, ok)
}

// Result returns the last result for the fingerprint.
func (c *Context) Result(f *fingerprint.Fingerprint) (*fingerprint.Result, bool) {
	r, ok := c.results[f]
	return r, ok
}

// MustResult is like Result, but returns a *fingerprint.ResolutionError if
// the fingerprint has not been resolved.
func (c *Context) MustResult(f *fingerprint.Fingerprint) (*fingerprint.Result, error) {
	if r, ok := c.results[f]; ok {
		return r, nil
	}
	return nil, f.Err()
}

func (c *Context) store(f *fingerprint.Fingerprint, r *fingerprint.Result, ok bool) (*fingerprint.Result, error) {
	if !ok {
		delete(c.results, f)
		return nil, f.Err()
	}
	c.results[f] = r
	return r, nil
}

var (
	registry []*Patch
	byName   = map[string]*Patch{}
)

// Register registers patches so they can be enabled by name. It panics if a
// patch is unnamed or a patch with the same name was already registered.
func Register(ps ...*Patch) {
	for _, p := range ps {
		if p.Name == "" {
			panic("attempt to register unnamed patch")
		}
		if _, ok := byName[p.Name]; ok {
			panic(fmt.Sprintf("attempt to register duplicate patch %q", p.Name))
		}
		byName[p.Name] = p
		registry = append(registry, p)
	}
}

// Get gets a registered patch by name.
func Get(name string) (*Patch, bool) {
	p, ok := byName[name]
	return p, ok
}

// All returns all registered patches in registration order.
func All() []*Patch {
	return append([]*Patch(nil), registry...)
}
