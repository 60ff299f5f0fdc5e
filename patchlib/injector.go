// Package patchlib provides common functions for injecting instructions into
// methods.
package patchlib

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pgaskin/fingerpatch/bytecode"
)

// Placeholder is replaced with the register number when rendering a template.
// It is usually written after the register prefix, i.e. v$X.
const Placeholder = "$X"

// Log is used to log debugging messages.
var Log = func(format string, a ...interface{}) {}

// Injector inserts instructions into methods. The zero value is ready to use.
type Injector struct {
	hook func(m *bytecode.Method, index int, insns []*bytecode.Instruction) error
}

// NewInjector creates a new Injector.
func NewInjector() *Injector {
	return &Injector{}
}

// Hook sets a hook to be called right before every change. If it returns an
// error, it will be passed on and the change will not be made. If nil (the
// default), the hook will be removed. The instructions MUST NOT be modified by
// the hook.
func (j *Injector) Hook(fn func(m *bytecode.Method, index int, insns []*bytecode.Instruction) error) {
	j.hook = fn
}

// Render substitutes register for every occurrence of the placeholder in
// template.
func Render(template string, register int) string {
	return strings.ReplaceAll(template, Placeholder, strconv.Itoa(register))
}

// Inject renders template with register, then inserts the resulting
// instructions before the instruction currently at index (index == m.Len()
// appends). Every instruction previously at or after index shifts up by the
// number of inserted instructions.
//
// Since any index at or after the insertion point is invalidated, multiple
// injections into the same method must be done highest-index-first, or with
// InjectAll.
func (j *Injector) Inject(m *bytecode.Method, template string, index, register int) error {
	if strings.Contains(template, Placeholder) && register < 0 {
		return fmt.Errorf("Inject: invalid register %d", register)
	}
	if err := j.insert(m, index, Render(template, register)); err != nil {
		return fmt.Errorf("Inject: %w", err)
	}
	return nil
}

// InjectHook injects template directly after the instruction at target,
// using the register that instruction writes to (e.g. the destination of a
// move-result or sget-object).
func (j *Injector) InjectHook(m *bytecode.Method, template string, target int) error {
	register, err := targetRegister(m, target)
	if err != nil {
		return fmt.Errorf("InjectHook: %w", err)
	}
	if err := j.insert(m, target+1, Render(template, register)); err != nil {
		return fmt.Errorf("InjectHook: %w", err)
	}
	return nil
}

// AddInstructions inserts text, which must not contain the placeholder, before
// the instruction at index.
func (j *Injector) AddInstructions(m *bytecode.Method, index int, text string) error {
	if strings.Contains(text, Placeholder) {
		return errors.New("AddInstructions: text contains unrendered placeholder")
	}
	if err := j.insert(m, index, text); err != nil {
		return fmt.Errorf("AddInstructions: %w", err)
	}
	return nil
}

// Site is a hook to inject with InjectHook.
type Site struct {
	Template string
	Target   int
}

// InjectAll injects several hooks whose targets were all computed against the
// current state of m. They are applied highest-target-first so none of the
// targets are invalidated by an earlier injection. Sites with the same target
// are injected in the order given. Every target and rendered template is
// checked first, so nothing is changed if any of them is invalid (an error
// from the Hook can still stop it part way).
func (j *Injector) InjectAll(m *bytecode.Method, sites ...Site) error {
	for _, s := range sites {
		register, err := targetRegister(m, s.Target)
		if err != nil {
			return fmt.Errorf("InjectAll: target %d: %w", s.Target, err)
		}
		insns, err := bytecode.ParseInstructions(Render(s.Template, register))
		if err != nil {
			return fmt.Errorf("InjectAll: target %d: parse template: %w", s.Target, err)
		}
		if len(insns) == 0 {
			return fmt.Errorf("InjectAll: target %d: template is empty", s.Target)
		}
	}
	sorted := append([]Site(nil), sites...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Target > sorted[b].Target
	})
	// for equal targets, inject the later ones first so the earlier ones end
	// up directly after the target
	for i := 0; i < len(sorted); {
		k := i
		for k < len(sorted) && sorted[k].Target == sorted[i].Target {
			k++
		}
		for n := k - 1; n >= i; n-- {
			if err := j.InjectHook(m, sorted[n].Template, sorted[n].Target); err != nil {
				return fmt.Errorf("InjectAll: %w", err)
			}
		}
		i = k
	}
	return nil
}

func (j *Injector) insert(m *bytecode.Method, index int, text string) error {
	if index < 0 || index > m.Len() {
		return &bytecode.PreconditionError{Op: "insert", Err: fmt.Errorf("%w: index %d, length %d", bytecode.ErrIndexOutOfRange, index, m.Len())}
	}
	insns, err := bytecode.ParseInstructions(text)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	if len(insns) == 0 {
		return errors.New("template is empty")
	}
	if j != nil && j.hook != nil {
		if err := j.hook(m, index, insns); err != nil {
			return fmt.Errorf("hook returned error: %w", err)
		}
	}
	Log("  inserting %d instruction(s) into %s at %d", len(insns), m.ID(), index)
	return m.InsertInstructions(index, insns...)
}

func targetRegister(m *bytecode.Method, target int) (int, error) {
	insn, err := m.Instruction(target)
	if err != nil {
		return 0, err
	}
	register, ok := insn.RegisterA()
	if !ok {
		return 0, fmt.Errorf("%s at %d does not write to a register", insn.Opcode, target)
	}
	return register, nil
}

var std = NewInjector()

// Inject calls Inject on an Injector without a hook.
func Inject(m *bytecode.Method, template string, index, register int) error {
	return std.Inject(m, template, index, register)
}

// InjectHook calls InjectHook on an Injector without a hook.
func InjectHook(m *bytecode.Method, template string, target int) error {
	return std.InjectHook(m, template, target)
}

// AddInstructions calls AddInstructions on an Injector without a hook.
func AddInstructions(m *bytecode.Method, index int, text string) error {
	return std.AddInstructions(m, index, text)
}

// InjectAll calls InjectAll on an Injector without a hook.
func InjectAll(m *bytecode.Method, sites ...Site) error {
	return std.InjectAll(m, sites...)
}
