// Package bytecode is an in-memory, mutable view of parsed Dalvik bytecode:
// classes, methods, and their instruction lists.
package bytecode

import (
	"errors"
	"fmt"
	"strings"
)

// AccessFlags are class/method access flags.
type AccessFlags uint32

// Access flags, with the values used by the dex format.
const (
	AccPublic               AccessFlags = 0x1
	AccPrivate              AccessFlags = 0x2
	AccProtected            AccessFlags = 0x4
	AccStatic               AccessFlags = 0x8
	AccFinal                AccessFlags = 0x10
	AccSynchronized         AccessFlags = 0x20
	AccBridge               AccessFlags = 0x40
	AccVarargs              AccessFlags = 0x80
	AccNative               AccessFlags = 0x100
	AccInterface            AccessFlags = 0x200
	AccAbstract             AccessFlags = 0x400
	AccStrict               AccessFlags = 0x800
	AccSynthetic            AccessFlags = 0x1000
	AccAnnotation           AccessFlags = 0x2000
	AccEnum                 AccessFlags = 0x4000
	AccConstructor          AccessFlags = 0x10000
	AccDeclaredSynchronized AccessFlags = 0x20000
)

var accessFlagNames = []struct {
	flag AccessFlags
	name string
}{
	{AccPublic, "public"},
	{AccPrivate, "private"},
	{AccProtected, "protected"},
	{AccStatic, "static"},
	{AccFinal, "final"},
	{AccSynchronized, "synchronized"},
	{AccBridge, "bridge"},
	{AccVarargs, "varargs"},
	{AccNative, "native"},
	{AccInterface, "interface"},
	{AccAbstract, "abstract"},
	{AccStrict, "strictfp"},
	{AccSynthetic, "synthetic"},
	{AccAnnotation, "annotation"},
	{AccEnum, "enum"},
	{AccConstructor, "constructor"},
	{AccDeclaredSynchronized, "declared-synchronized"},
}

// ParseAccessFlag parses a single smali access flag keyword.
func ParseAccessFlag(name string) (AccessFlags, bool) {
	for _, f := range accessFlagNames {
		if f.name == name {
			return f.flag, true
		}
	}
	return 0, false
}

// String returns the space-separated smali keywords for the flags.
func (a AccessFlags) String() string {
	var s []string
	for _, f := range accessFlagNames {
		if a&f.flag != 0 {
			s = append(s, f.name)
		}
	}
	return strings.Join(s, " ")
}

// ErrIndexOutOfRange is wrapped by errors for instruction indices outside of
// a method.
var ErrIndexOutOfRange = errors.New("index out of range")

// PreconditionError is returned when an operation is called with arguments
// which are structurally invalid for the current state of a method.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *PreconditionError) Unwrap() error { return e.Err }

// Method is a mutable method handle. It is shared by pointer between every
// user of the Container it belongs to.
type Method struct {
	Class        string // type descriptor of the defining class
	Name         string
	Parameters   []string
	ReturnType   string
	AccessFlags  AccessFlags
	Registers    int  // .registers count, or the .locals count if Locals
	Locals       bool // Registers excludes the parameter registers
	Instructions []*Instruction
	EndLabels    []string // labels after the last instruction
}

// Signature returns name(params)ret.
func (m *Method) Signature() string {
	return m.Name + "(" + strings.Join(m.Parameters, "") + ")" + m.ReturnType
}

// ID returns the identity of the method: Lclass;->name(params)ret.
func (m *Method) ID() string {
	return m.Class + "->" + m.Signature()
}

func (m *Method) String() string {
	return m.ID()
}

// Len returns the number of instructions.
func (m *Method) Len() int {
	return len(m.Instructions)
}

// Instruction returns the instruction at index i.
func (m *Method) Instruction(i int) (*Instruction, error) {
	if i < 0 || i >= len(m.Instructions) {
		return nil, &PreconditionError{"Instruction", fmt.Errorf("%w: %d not in [0, %d) for %s", ErrIndexOutOfRange, i, len(m.Instructions), m)}
	}
	return m.Instructions[i], nil
}

// InsertInstructions inserts insns immediately before the instruction
// currently at index i (i == Len() appends). Every instruction previously at
// an index >= i moves up by len(insns), so any index greater than or equal to
// i computed before the call is stale afterwards. When inserting at several
// indices in one method, insert at the highest index first.
func (m *Method) InsertInstructions(i int, insns ...*Instruction) error {
	if i < 0 || i > len(m.Instructions) {
		return &PreconditionError{"InsertInstructions", fmt.Errorf("%w: %d not in [0, %d] for %s", ErrIndexOutOfRange, i, len(m.Instructions), m)}
	}
	if len(insns) == 0 {
		return nil
	}
	n := make([]*Instruction, 0, len(m.Instructions)+len(insns))
	n = append(n, m.Instructions[:i]...)
	n = append(n, insns...)
	n = append(n, m.Instructions[i:]...)
	m.Instructions = n
	return nil
}

// Class is a class definition.
type Class struct {
	Type        string
	AccessFlags AccessFlags
	SuperClass  string
	SourceFile  string
	Interfaces  []string
	Methods     []*Method
}

// Method returns the method with the specified signature (name(params)ret),
// or nil.
func (c *Class) Method(signature string) *Method {
	for _, m := range c.Methods {
		if m.Signature() == signature {
			return m
		}
	}
	return nil
}

func (c *Class) String() string {
	return c.Type
}

// Container is the set of classes being patched. It is owned by whoever
// drives the patching, and mutated in place.
type Container struct {
	Classes []*Class
	index   map[string]*Class
}

// NewContainer creates a Container from classes. Class types must be unique.
func NewContainer(classes ...*Class) (*Container, error) {
	c := &Container{index: map[string]*Class{}}
	for _, cls := range classes {
		if err := c.AddClass(cls); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddClass appends a class to the container.
func (c *Container) AddClass(cls *Class) error {
	if c.index == nil {
		c.index = map[string]*Class{}
	}
	if _, ok := c.index[cls.Type]; ok {
		return fmt.Errorf("AddClass: duplicate class %s", cls.Type)
	}
	c.index[cls.Type] = cls
	c.Classes = append(c.Classes, cls)
	return nil
}

// Class returns the class with the specified type descriptor, or nil.
func (c *Container) Class(typ string) *Class {
	return c.index[typ]
}

// Method returns the method with the specified ID (Lclass;->name(params)ret),
// or nil.
func (c *Container) Method(id string) *Method {
	typ, sig, ok := strings.Cut(id, "->")
	if !ok {
		return nil
	}
	cls := c.Class(typ)
	if cls == nil {
		return nil
	}
	return cls.Method(sig)
}

// NumMethods returns the total number of methods.
func (c *Container) NumMethods() int {
	var n int
	for _, cls := range c.Classes {
		n += len(cls.Methods)
	}
	return n
}
