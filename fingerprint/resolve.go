package fingerprint

import (
	"strings"

	"github.com/pgaskin/fingerpatch/bytecode"
)

// Result is a resolved fingerprint. The indices in Scan are only valid until
// instructions are inserted into Method at or before them.
type Result struct {
	Method *bytecode.Method
	Class  *bytecode.Class
	Scan   ScanResult
}

// Resolve searches every method of every class in c, in order, and returns
// the first match.
//
// If more than one method matches, the first one wins; fingerprints which may
// be ambiguous should be resolved against a narrower search space.
func (f *Fingerprint) Resolve(c *bytecode.Container) (*Result, bool) {
	for _, cls := range c.Classes {
		if r, ok := f.ResolveClass(cls); ok {
			return r, true
		}
	}
	return nil, false
}

// ResolveClass searches the methods of a single class.
func (f *Fingerprint) ResolveClass(c *bytecode.Class) (*Result, bool) {
	for _, m := range c.Methods {
		if r, ok := f.ResolveMethod(m, c); ok {
			return r, true
		}
	}
	return nil, false
}

// ResolveMethod checks a single method, which belongs to c. This is used to
// find sibling code inside a method found by another fingerprint.
func (f *Fingerprint) ResolveMethod(m *bytecode.Method, c *bytecode.Class) (*Result, bool) {
	if f.returnType != nil && !strings.HasPrefix(m.ReturnType, *f.returnType) {
		return nil, false
	}
	if f.accessFlags != nil && m.AccessFlags != *f.accessFlags {
		return nil, false
	}
	if f.hasParams {
		if len(m.Parameters) != len(f.parameters) {
			return nil, false
		}
		for i, p := range f.parameters {
			if !strings.HasPrefix(m.Parameters[i], p) {
				return nil, false
			}
		}
	}

	r := &Result{Method: m, Class: c}
	if f.pattern != nil {
		p, ok := ScanPattern(m.Instructions, f.pattern)
		if !ok {
			return nil, false
		}
		r.Scan.Pattern = p
	}
	if f.strings != nil {
		s, ok := ScanStrings(m.Instructions, f.strings)
		if !ok {
			return nil, false
		}
		r.Scan.Strings = s
	}
	if f.custom != nil && !f.custom(m, c) {
		return nil, false
	}
	return r, true
}
