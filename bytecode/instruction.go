package bytecode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Instruction is a single parsed instruction. Register operands are always
// absolute (v) registers.
type Instruction struct {
	Opcode    Opcode
	Registers []int
	Literal   string   // string constant, only for opcodes which load one
	Operand   string   // reference, label, or numeric literal
	Labels    []string // labels attached to this instruction, without the ':'
}

// ErrNoRegister is returned when accessing a register an instruction does not
// have.
var ErrNoRegister = errors.New("no such register")

// RegisterA returns the first register operand, if the instruction has a
// fixed register layout (i.e. it is not an invoke). This matches what a
// one-register instruction exposes as its destination/source register.
func (i *Instruction) RegisterA() (int, bool) {
	if f := i.Opcode.Format(); f == Format35c || f == Format3rc || len(i.Registers) == 0 {
		return 0, false
	}
	return i.Registers[0], true
}

// Register returns register operand n.
func (i *Instruction) Register(n int) (int, error) {
	if n < 0 || n >= len(i.Registers) {
		return 0, fmt.Errorf("Register(%d) of %s: %w", n, i.Opcode, ErrNoRegister)
	}
	return i.Registers[n], nil
}

// SetRegister replaces register operand n with r.
func (i *Instruction) SetRegister(n, r int) error {
	if n < 0 || n >= len(i.Registers) {
		return fmt.Errorf("SetRegister(%d) of %s: %w", n, i.Opcode, ErrNoRegister)
	}
	if r < 0 {
		return fmt.Errorf("SetRegister(%d) of %s: negative register v%d", n, i.Opcode, r)
	}
	i.Registers[n] = r
	return nil
}

// Clone returns a deep copy of the instruction.
func (i *Instruction) Clone() *Instruction {
	c := *i
	c.Registers = append([]int(nil), i.Registers...)
	c.Labels = append([]string(nil), i.Labels...)
	return &c
}

// String formats the instruction (without labels) in the same syntax
// ParseInstruction accepts.
func (i *Instruction) String() string {
	var b strings.Builder
	b.WriteString(i.Opcode.String())
	switch f := i.Opcode.Format(); f {
	case Format35c, Format3rc:
		b.WriteString(" {")
		if f == Format3rc && len(i.Registers) > 0 {
			fmt.Fprintf(&b, "v%d .. v%d", i.Registers[0], i.Registers[len(i.Registers)-1])
		} else {
			for n, r := range i.Registers {
				if n != 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "v%d", r)
			}
		}
		b.WriteString("}, ")
		b.WriteString(i.Operand)
	default:
		for n, r := range i.Registers {
			if n == 0 {
				b.WriteByte(' ')
			} else {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "v%d", r)
		}
		if f.operand() {
			if len(i.Registers) == 0 {
				b.WriteByte(' ')
			} else {
				b.WriteString(", ")
			}
			if i.Opcode.LoadsString() {
				b.WriteString(strconv.Quote(i.Literal))
			} else {
				b.WriteString(i.Operand)
			}
		}
	}
	return b.String()
}

// ParseInstruction parses a single instruction line. Labels and comments are
// not accepted here (see ParseInstructions).
func ParseInstruction(line string) (*Instruction, error) {
	line = strings.TrimSpace(line)
	mnemonic, rest := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i != -1 {
		mnemonic, rest = line[:i], line[i:]
	}
	op, ok := LookupOpcode(mnemonic)
	if !ok {
		return nil, fmt.Errorf("parse %q: unknown opcode %q", line, mnemonic)
	}

	operands, err := splitOperands(rest)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", line, err)
	}

	insn := &Instruction{Opcode: op}
	f := op.Format()
	switch f {
	case Format35c, Format3rc:
		if len(operands) != 2 || !strings.HasPrefix(operands[0], "{") {
			return nil, fmt.Errorf("parse %q: expected {registers}, reference", line)
		}
		if insn.Registers, err = parseRegisterList(operands[0], f == Format3rc); err != nil {
			return nil, fmt.Errorf("parse %q: %w", line, err)
		}
		insn.Operand = operands[1]
		return insn, nil
	}

	nreg := f.registers()
	nexp := nreg
	if f.operand() {
		nexp++
	}
	if len(operands) != nexp {
		return nil, fmt.Errorf("parse %q: expected %d operands for %s, got %d", line, nexp, op, len(operands))
	}
	for _, o := range operands[:nreg] {
		r, err := parseRegister(o)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", line, err)
		}
		insn.Registers = append(insn.Registers, r)
	}
	if f.operand() {
		o := operands[nreg]
		switch {
		case op.LoadsString():
			if !strings.HasPrefix(o, `"`) {
				return nil, fmt.Errorf("parse %q: expected string literal, got %q", line, o)
			}
			if insn.Literal, err = strconv.Unquote(o); err != nil {
				return nil, fmt.Errorf("parse %q: bad string literal %s: %w", line, o, err)
			}
		case strings.HasPrefix(o, "{") || strings.HasPrefix(o, `"`):
			return nil, fmt.Errorf("parse %q: unexpected operand %s", line, o)
		default:
			insn.Operand = o
		}
	}
	return insn, nil
}

// ParseInstructions parses newline-separated instructions. Blank lines and
// lines starting with '#' are ignored, and label lines (":name") are attached
// to the next instruction. Labels after the last instruction are an error.
func ParseInstructions(text string) ([]*Instruction, error) {
	var insns []*Instruction
	var labels []string
	for n, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "", strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, ":"):
			labels = append(labels, line[1:])
			continue
		}
		insn, err := ParseInstruction(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		insn.Labels, labels = labels, nil
		insns = append(insns, insn)
	}
	if len(labels) != 0 {
		return nil, fmt.Errorf("dangling labels %v", labels)
	}
	return insns, nil
}

// splitOperands splits a comma-separated operand list, keeping quoted
// strings and brace-enclosed register lists intact.
func splitOperands(s string) ([]string, error) {
	var ops []string
	var cur strings.Builder
	var inStr, esc bool
	var depth int
	flush := func() {
		if o := strings.TrimSpace(cur.String()); o != "" {
			ops = append(ops, o)
		}
		cur.Reset()
	}
	for _, c := range s {
		switch {
		case inStr:
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
		case c == '"':
			inStr = true
		case c == '{':
			depth++
		case c == '}':
			if depth--; depth < 0 {
				return nil, errors.New("unbalanced '}'")
			}
		case c == ',' && depth == 0:
			flush()
			continue
		}
		cur.WriteRune(c)
	}
	if inStr {
		return nil, errors.New("unterminated string literal")
	}
	if depth != 0 {
		return nil, errors.New("unbalanced '{'")
	}
	flush()
	return ops, nil
}

func parseRegister(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != 'v' {
		return 0, fmt.Errorf("bad register %q (only v registers are supported)", s)
	}
	r, err := strconv.Atoi(s[1:])
	if err != nil || r < 0 {
		return 0, fmt.Errorf("bad register %q", s)
	}
	return r, nil
}

func parseRegisterList(s string, isRange bool) ([]int, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}"))
	if s == "" {
		return nil, nil
	}
	if isRange {
		a, b, ok := strings.Cut(s, "..")
		if !ok {
			return nil, fmt.Errorf("bad register range %q", s)
		}
		first, err := parseRegister(a)
		if err != nil {
			return nil, err
		}
		last, err := parseRegister(b)
		if err != nil {
			return nil, err
		}
		if last < first {
			return nil, fmt.Errorf("bad register range %q", s)
		}
		regs := make([]int, 0, last-first+1)
		for r := first; r <= last; r++ {
			regs = append(regs, r)
		}
		return regs, nil
	}
	var regs []int
	for _, o := range strings.Split(s, ",") {
		r, err := parseRegister(o)
		if err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, nil
}
