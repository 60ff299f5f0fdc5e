package yamlpatch

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pgaskin/fingerpatch/bytecode"
	"github.com/pgaskin/fingerpatch/fingerprint"
	"github.com/pgaskin/fingerpatch/patch"
	"gopkg.in/yaml.v3"
)

type Patch []*Instruction

type PatchNode []yaml.Node

func (p *PatchNode) ToInstructionNodes() ([]InstructionNode, error) {
	n := make([]InstructionNode, len(*p))
	for i, t := range *p {
		if err := t.DecodeStrict(&n[i]); err != nil {
			return n, fmt.Errorf("line %d: %w", t.Line, err)
		}
	}
	return n, nil
}

func (p *PatchNode) ToPatch() (Patch, error) {
	ns, err := p.ToInstructionNodes()
	if err != nil {
		return nil, err
	}
	pt := make(Patch, len(ns))
	for i, n := range ns {
		if pt[i], err = n.ToInstruction(); err != nil {
			return nil, err
		}
	}
	return pt, nil
}

type Instruction struct {
	Enabled         *Enabled         `yaml:"Enabled,omitempty"`
	Description     *Description     `yaml:"Description,omitempty"`
	Dependencies    *Dependencies    `yaml:"Dependencies,omitempty,flow"`
	Compatible      *Compatible      `yaml:"Compatible,omitempty"`
	Fingerprint     *Fingerprint     `yaml:"Fingerprint,omitempty"`
	ResolveWithin   *ResolveWithin   `yaml:"ResolveWithin,omitempty"`
	InjectHook      *InjectHook      `yaml:"InjectHook,omitempty"`
	AddInstructions *AddInstructions `yaml:"AddInstructions,omitempty"`
}

type InstructionNode map[string]yaml.Node

func (i InstructionNode) ToInstruction() (*Instruction, error) {
	if len(i) == 0 {
		return nil, fmt.Errorf("expected instruction, got nothing")
	}
	var found bool
	var n Instruction
	for name, node := range i {
		if found {
			return nil, fmt.Errorf("line %d: multiple types found in instruction, maybe you forgot a '-'", node.Line)
		} else if field := reflect.ValueOf(&n).Elem().FieldByName(name); !field.IsValid() {
			return nil, fmt.Errorf("line %d: unknown instruction type %#v", node.Line, name)
		} else if err := node.DecodeStrict(field.Addr().Interface()); err != nil {
			return nil, fmt.Errorf("line %d: error decoding instruction: %w", node.Line, err)
		} else {
			found = true
		}
	}
	return &n, nil
}

func (i Instruction) ToSingleInstruction() interface{} {
	iv := reflect.ValueOf(i)
	for i := 0; i < iv.NumField(); i++ {
		if !iv.Field(i).IsNil() {
			return iv.Field(i).Elem().Interface()
		}
	}
	return nil
}

type Enabled bool
type Description string
type Dependencies []string

type Compatible struct {
	Name     string   `yaml:"Name"`
	Versions []string `yaml:"Versions,omitempty,flow"`
}

func (c Compatible) ToCompatibility() (patch.Compatibility, error) {
	if c.Name == "" {
		return patch.Compatibility{}, fmt.Errorf("Compatible: missing package name")
	}
	return patch.Compatibility{Name: c.Name, Versions: c.Versions}, nil
}

// Fingerprint defines a fingerprint which can be referred to by name from any
// patch in the same file. Fingerprints which are not used with ResolveWithin
// are resolved against the whole container before the patch is executed.
type Fingerprint struct {
	Name        string   `yaml:"Name"`
	ReturnType  *string  `yaml:"ReturnType,omitempty"`
	AccessFlags *string  `yaml:"AccessFlags,omitempty"` // space-separated
	Parameters  []string `yaml:"Parameters,omitempty,flow"`
	Pattern     []string `yaml:"Pattern,omitempty,flow"` // opcodes, or * for any instruction
	Strings     []string `yaml:"Strings,omitempty,flow"`
}

func (f Fingerprint) ToFingerprint() (*fingerprint.Fingerprint, error) {
	var opts []fingerprint.Option
	if f.ReturnType != nil {
		opts = append(opts, fingerprint.ReturnType(*f.ReturnType))
	}
	if f.AccessFlags != nil {
		var flags bytecode.AccessFlags
		for _, s := range strings.Fields(*f.AccessFlags) {
			flag, ok := bytecode.ParseAccessFlag(s)
			if !ok {
				return nil, fmt.Errorf("Fingerprint %s: unknown access flag %q", f.Name, s)
			}
			flags |= flag
		}
		opts = append(opts, fingerprint.AccessFlags(flags))
	}
	if f.Parameters != nil {
		opts = append(opts, fingerprint.Parameters(f.Parameters...))
	}
	if f.Pattern != nil {
		steps := make([]fingerprint.Step, len(f.Pattern))
		for i, s := range f.Pattern {
			if s == "*" {
				steps[i] = fingerprint.Any()
				continue
			}
			op, ok := bytecode.LookupOpcode(s)
			if !ok {
				return nil, fmt.Errorf("Fingerprint %s: pattern step %d: unknown opcode %q", f.Name, i, s)
			}
			steps[i] = fingerprint.Op(op)
		}
		opts = append(opts, fingerprint.Pattern(steps...))
	}
	if f.Strings != nil {
		opts = append(opts, fingerprint.Strings(f.Strings...))
	}
	return fingerprint.New(f.Name, opts...)
}

// ResolveWithin re-resolves a fingerprint inside the method (or its class)
// found by another one.
type ResolveWithin struct {
	Fingerprint string `yaml:"Fingerprint"`
	Within      string `yaml:"Within"`
	Class       bool   `yaml:"Class,omitempty"` // search the whole class rather than only the method
}

// Anchor is an instruction index relative to part of a fingerprint's result.
type Anchor struct {
	Fingerprint string  `yaml:"Fingerprint"`
	At          string  `yaml:"At"`               // PatternStart, PatternEnd, or String
	String      *string `yaml:"String,omitempty"` // for At: String
	Offset      int     `yaml:"Offset,omitempty"`
}

// Index finds the instruction index the anchor refers to.
func (a Anchor) Index(r *fingerprint.Result) (int, error) {
	var i int
	switch a.At {
	case "PatternStart", "PatternEnd":
		if r.Scan.Pattern == nil {
			return 0, fmt.Errorf("%s: fingerprint %s has no pattern", a.At, a.Fingerprint)
		}
		if i = r.Scan.Pattern.StartIndex; a.At == "PatternEnd" {
			i = r.Scan.Pattern.EndIndex
		}
	case "String":
		if r.Scan.Strings == nil || a.String == nil {
			return 0, fmt.Errorf("String: fingerprint %s has no strings", a.Fingerprint)
		}
		var ok bool
		if i, ok = r.Scan.Strings.Index(*a.String); !ok {
			return 0, fmt.Errorf("String: %q not matched by fingerprint %s", *a.String, a.Fingerprint)
		}
	default:
		return 0, fmt.Errorf("unknown anchor %q", a.At)
	}
	return i + a.Offset, nil
}

func (a Anchor) validate() error {
	switch a.At {
	case "PatternStart", "PatternEnd":
		if a.String != nil {
			return fmt.Errorf("String is only valid with At: String")
		}
	case "String":
		if a.String == nil {
			return fmt.Errorf("At: String requires String")
		}
	default:
		return fmt.Errorf("unknown anchor %q (expected PatternStart, PatternEnd, or String)", a.At)
	}
	if a.Fingerprint == "" {
		return fmt.Errorf("missing Fingerprint")
	}
	return nil
}

// InjectHook injects Template directly after the anchored instruction, with
// the placeholder replaced by the register it writes to.
type InjectHook struct {
	Anchor   `yaml:",inline"`
	Template string `yaml:"Template"`
}

// AddInstructions inserts Text before the anchored instruction. If
// RegisterFrom is set, the placeholder is replaced by the register written by
// the instruction at that offset from the anchor.
type AddInstructions struct {
	Anchor       `yaml:",inline"`
	Text         string `yaml:"Text"`
	RegisterFrom *int   `yaml:"RegisterFrom,omitempty"`
}
