// Package fingerprint finds methods in a bytecode container by a partial
// description of their shape and contents, rather than by name or offset.
package fingerprint

import (
	"errors"
	"fmt"

	"github.com/pgaskin/fingerpatch/bytecode"
)

// StepKind is the kind of a pattern Step.
type StepKind uint8

const (
	StepOpcode    StepKind = iota // matches a single opcode
	StepWildcard                  // matches any instruction
	StepPredicate                 // matches if the predicate returns true
)

// Step is a single element of an instruction pattern.
type Step struct {
	Kind      StepKind
	Opcode    bytecode.Opcode
	Predicate func(*bytecode.Instruction) bool
}

// Op returns a step matching op.
func Op(op bytecode.Opcode) Step {
	return Step{Kind: StepOpcode, Opcode: op}
}

// Any returns a step matching any instruction.
func Any() Step {
	return Step{Kind: StepWildcard}
}

// Match returns a step matching instructions for which fn returns true.
func Match(fn func(*bytecode.Instruction) bool) Step {
	return Step{Kind: StepPredicate, Predicate: fn}
}

// Ops returns a step for each opcode, in order.
func Ops(ops ...bytecode.Opcode) []Step {
	s := make([]Step, len(ops))
	for i, op := range ops {
		s[i] = Op(op)
	}
	return s
}

func (s Step) matches(insn *bytecode.Instruction) bool {
	switch s.Kind {
	case StepOpcode:
		return insn.Opcode == s.Opcode
	case StepWildcard:
		return true
	case StepPredicate:
		return s.Predicate(insn)
	default:
		panic(fmt.Sprintf("fingerprint: invalid step kind %d", s.Kind))
	}
}

func (s Step) String() string {
	switch s.Kind {
	case StepOpcode:
		return s.Opcode.String()
	case StepWildcard:
		return "*"
	default:
		return "<predicate>"
	}
}

// Fingerprint describes a method to find. It is immutable once created, so it
// can be declared once at package level and resolved any number of times.
type Fingerprint struct {
	name        string
	returnType  *string
	accessFlags *bytecode.AccessFlags
	parameters  []string
	hasParams   bool
	pattern     []Step
	strings     []string
	custom      func(*bytecode.Method, *bytecode.Class) bool
}

// Option configures a Fingerprint.
type Option func(*Fingerprint) error

// ReturnType requires the method's return type to start with prefix.
func ReturnType(prefix string) Option {
	return func(f *Fingerprint) error {
		f.returnType = &prefix
		return nil
	}
}

// AccessFlags requires the method's access flags to equal flags exactly.
func AccessFlags(flags bytecode.AccessFlags) Option {
	return func(f *Fingerprint) error {
		f.accessFlags = &flags
		return nil
	}
}

// Parameters requires the method to have exactly len(prefixes) parameters,
// each starting with the corresponding prefix.
func Parameters(prefixes ...string) Option {
	return func(f *Fingerprint) error {
		f.parameters = append([]string(nil), prefixes...)
		f.hasParams = true
		return nil
	}
}

// Pattern requires the method to contain a contiguous run of instructions
// matching steps. The pattern must not be empty.
func Pattern(steps ...Step) Option {
	return func(f *Fingerprint) error {
		if len(steps) == 0 {
			return errors.New("empty pattern")
		}
		for i, s := range steps {
			switch {
			case s.Kind == StepOpcode && !s.Opcode.Valid():
				return fmt.Errorf("pattern step %d: invalid opcode %s", i, s.Opcode)
			case s.Kind == StepPredicate && s.Predicate == nil:
				return fmt.Errorf("pattern step %d: nil predicate", i)
			case s.Kind > StepPredicate:
				return fmt.Errorf("pattern step %d: invalid kind %d", i, s.Kind)
			}
		}
		f.pattern = append([]Step(nil), steps...)
		return nil
	}
}

// Strings requires the method to load every one of the string constants.
func Strings(literals ...string) Option {
	return func(f *Fingerprint) error {
		if len(literals) == 0 {
			return errors.New("empty strings")
		}
		f.strings = append([]string(nil), literals...)
		return nil
	}
}

// Custom requires fn to return true for the method. It is checked last.
func Custom(fn func(m *bytecode.Method, c *bytecode.Class) bool) Option {
	return func(f *Fingerprint) error {
		if fn == nil {
			return errors.New("nil custom predicate")
		}
		f.custom = fn
		return nil
	}
}

// New creates a Fingerprint.
func New(name string, opts ...Option) (*Fingerprint, error) {
	if name == "" {
		return nil, errors.New("fingerprint: name must not be empty")
	}
	f := &Fingerprint{name: name}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, fmt.Errorf("fingerprint %s: %w", name, err)
		}
	}
	return f, nil
}

// MustNew is like New, but panics on error.
func MustNew(name string, opts ...Option) *Fingerprint {
	f, err := New(name, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// Name returns the name of the fingerprint.
func (f *Fingerprint) Name() string {
	return f.name
}

// Pattern returns a copy of the pattern steps (nil if none).
func (f *Fingerprint) Pattern() []Step {
	return append([]Step(nil), f.pattern...)
}

// Strings returns a copy of the string literals (nil if none).
func (f *Fingerprint) Strings() []string {
	return append([]string(nil), f.strings...)
}

func (f *Fingerprint) String() string {
	return f.name
}

// ErrNotFound is wrapped by ResolutionError.
var ErrNotFound = errors.New("fingerprint not found")

// ResolutionError is returned by Err when a fingerprint did not match.
type ResolutionError struct {
	Fingerprint string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %s", e.Fingerprint)
}

func (e *ResolutionError) Unwrap() error {
	return ErrNotFound
}

// Err returns the error to use when a fingerprint is required but did not
// resolve.
func (f *Fingerprint) Err() error {
	return &ResolutionError{Fingerprint: f.name}
}
