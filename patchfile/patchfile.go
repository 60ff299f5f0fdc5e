// Package patchfile provides a standard interface to read declarative patches
// from files.
package patchfile

import (
	"fmt"
	"os"
	"sort"

	"github.com/pgaskin/fingerpatch/patch"
)

// Log is used to log debugging messages.
var Log = func(format string, a ...interface{}) {}

// PatchSet represents a set of patches read from a file.
type PatchSet interface {
	// Validate validates the PatchSet.
	Validate() error
	// Patches converts the PatchSet into patches, in the order they were
	// defined. Dependencies which are not in the PatchSet are looked up in the
	// patch registry.
	Patches() ([]*patch.Patch, error)
}

var formats = map[string]func([]byte) (PatchSet, error){}

// RegisterFormat registers a format.
func RegisterFormat(name string, f func([]byte) (PatchSet, error)) {
	if _, ok := formats[name]; ok {
		panic("attempt to register duplicate format " + name)
	}
	formats[name] = f
}

// GetFormat gets a format.
func GetFormat(name string) (func([]byte) (PatchSet, error), bool) {
	f, ok := formats[name]
	return f, ok
}

// GetFormats gets all registered formats, sorted.
func GetFormats() []string {
	f := []string{}
	for n := range formats {
		f = append(f, n)
	}
	sort.Strings(f)
	return f
}

// ReadFromFile reads a patchset from a file (but does not validate it).
func ReadFromFile(format, filename string) (PatchSet, error) {
	f, ok := GetFormat(format)
	if !ok {
		return nil, fmt.Errorf("no format called '%s'", format)
	}

	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open patch file: %w", err)
	}

	ps, err := f(buf)
	if err != nil {
		return nil, fmt.Errorf("could not parse patch file: %w", err)
	}

	return ps, nil
}

// LoadFile reads, validates, and converts a patch file.
func LoadFile(format, filename string) ([]*patch.Patch, error) {
	ps, err := ReadFromFile(format, filename)
	if err != nil {
		return nil, err
	}
	if err := ps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid patch file: %w", err)
	}
	pts, err := ps.Patches()
	if err != nil {
		return nil, fmt.Errorf("could not load patch file: %w", err)
	}
	return pts, nil
}
