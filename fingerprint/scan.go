package fingerprint

import (
	"fmt"

	"github.com/pgaskin/fingerpatch/bytecode"
)

// PatternScanResult is the location of a pattern match. Both indices are
// inclusive.
type PatternScanResult struct {
	StartIndex int
	EndIndex   int
}

// StringMatch is a single instruction loading a requested string.
type StringMatch struct {
	String string
	Index  int
}

// StringsScanResult is the result of a strings scan. Matches are ordered by
// the order the strings were requested in, then by index.
type StringsScanResult struct {
	Matches []StringMatch
}

// Index returns the index of the first instruction loading s.
func (r *StringsScanResult) Index(s string) (int, bool) {
	for _, m := range r.Matches {
		if m.String == s {
			return m.Index, true
		}
	}
	return 0, false
}

// MustIndex is like Index, but panics with a *bytecode.PreconditionError if s
// was not matched.
func (r *StringsScanResult) MustIndex(s string) int {
	i, ok := r.Index(s)
	if !ok {
		panic(&bytecode.PreconditionError{Op: "MustIndex", Err: fmt.Errorf("string %q not in scan result", s)})
	}
	return i
}

// ScanResult holds the scan results for the parts of a fingerprint which were
// specified.
type ScanResult struct {
	Pattern *PatternScanResult
	Strings *StringsScanResult
}

// ScanPattern finds the leftmost contiguous run of insns matching steps.
func ScanPattern(insns []*bytecode.Instruction, steps []Step) (*PatternScanResult, bool) {
	if len(steps) == 0 || len(steps) > len(insns) {
		return nil, false
	}
outer:
	for off := 0; off+len(steps) <= len(insns); off++ {
		for i, s := range steps {
			if !s.matches(insns[off+i]) {
				continue outer
			}
		}
		return &PatternScanResult{StartIndex: off, EndIndex: off + len(steps) - 1}, true
	}
	return nil, false
}

// ScanStrings finds every instruction loading one of literals (compared
// exactly). It fails unless every literal is loaded at least once.
func ScanStrings(insns []*bytecode.Instruction, literals []string) (*StringsScanResult, bool) {
	if len(literals) == 0 {
		return nil, false
	}
	r := &StringsScanResult{}
	for _, s := range literals {
		var found bool
		for i, insn := range insns {
			if insn.Opcode.LoadsString() && insn.Literal == s {
				r.Matches = append(r.Matches, StringMatch{String: s, Index: i})
				found = true
			}
		}
		if !found {
			return nil, false
		}
	}
	return r, true
}
