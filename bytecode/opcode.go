package bytecode

import "fmt"

// Opcode is a Dalvik opcode. Opcodes are the unit compared by pattern scans,
// so two instructions with different operands but the same Opcode are
// considered equivalent there.
type Opcode uint16

// Format describes the operand layout of an opcode.
type Format uint8

// Operand layouts, named after the Dalvik instruction formats they cover.
const (
	Format10x Format = iota // op
	Format11x               // op vA
	Format11n               // op vA, #lit
	Format21c               // op vA, ref (or "string" for const-string)
	Format12x               // op vA, vB
	Format22c               // op vA, vB, ref
	Format22s               // op vA, vB, #lit
	Format23x               // op vA, vB, vC
	Format10t               // op :label
	Format21t               // op vA, :label
	Format22t               // op vA, vB, :label
	Format35c               // op {vC, vD, ...}, ref
	Format3rc               // op {vC .. vN}, ref
)

// registers returns the fixed register count of the format, or -1 if the
// count is variable.
func (f Format) registers() int {
	switch f {
	case Format10x, Format10t:
		return 0
	case Format11x, Format11n, Format21c, Format21t:
		return 1
	case Format12x, Format22c, Format22s, Format22t:
		return 2
	case Format23x:
		return 3
	default:
		return -1
	}
}

// operand returns whether the format has a trailing non-register operand.
func (f Format) operand() bool {
	switch f {
	case Format10x, Format11x, Format12x, Format23x:
		return false
	default:
		return true
	}
}

// Opcodes.
const (
	Nop Opcode = iota
	Move
	MoveFrom16
	MoveWide
	MoveObject
	MoveObjectFrom16
	MoveResult
	MoveResultWide
	MoveResultObject
	MoveException
	ReturnVoid
	Return
	ReturnWide
	ReturnObject
	Const4
	Const16
	Const
	ConstHigh16
	ConstWide16
	ConstWide
	ConstString
	ConstStringJumbo
	ConstClass
	MonitorEnter
	MonitorExit
	CheckCast
	InstanceOf
	ArrayLength
	NewInstance
	NewArray
	Throw
	Goto
	Goto16
	Goto32
	PackedSwitch
	SparseSwitch
	CmplFloat
	CmpgFloat
	CmpLong
	IfEq
	IfNe
	IfLt
	IfGe
	IfGt
	IfLe
	IfEqz
	IfNez
	IfLtz
	IfGez
	IfGtz
	IfLez
	Aget
	AgetObject
	AgetBoolean
	Aput
	AputObject
	AputBoolean
	Iget
	IgetWide
	IgetObject
	IgetBoolean
	Iput
	IputWide
	IputObject
	IputBoolean
	Sget
	SgetWide
	SgetObject
	SgetBoolean
	Sput
	SputWide
	SputObject
	SputBoolean
	InvokeVirtual
	InvokeSuper
	InvokeDirect
	InvokeStatic
	InvokeInterface
	InvokeVirtualRange
	InvokeSuperRange
	InvokeDirectRange
	InvokeStaticRange
	InvokeInterfaceRange
	NegInt
	NotInt
	IntToLong
	IntToFloat
	LongToInt
	AddInt
	SubInt
	MulInt
	DivInt
	RemInt
	AndInt
	OrInt
	XorInt
	AddInt2Addr
	SubInt2Addr
	AddIntLit8
	AddIntLit16
	RsubInt
	numOpcodes
)

type opcodeInfo struct {
	name   string
	format Format
}

var opcodes = [numOpcodes]opcodeInfo{
	Nop:                  {"nop", Format10x},
	Move:                 {"move", Format12x},
	MoveFrom16:           {"move/from16", Format12x},
	MoveWide:             {"move-wide", Format12x},
	MoveObject:           {"move-object", Format12x},
	MoveObjectFrom16:     {"move-object/from16", Format12x},
	MoveResult:           {"move-result", Format11x},
	MoveResultWide:       {"move-result-wide", Format11x},
	MoveResultObject:     {"move-result-object", Format11x},
	MoveException:        {"move-exception", Format11x},
	ReturnVoid:           {"return-void", Format10x},
	Return:               {"return", Format11x},
	ReturnWide:           {"return-wide", Format11x},
	ReturnObject:         {"return-object", Format11x},
	Const4:               {"const/4", Format11n},
	Const16:              {"const/16", Format11n},
	Const:                {"const", Format11n},
	ConstHigh16:          {"const/high16", Format11n},
	ConstWide16:          {"const-wide/16", Format11n},
	ConstWide:            {"const-wide", Format11n},
	ConstString:          {"const-string", Format21c},
	ConstStringJumbo:     {"const-string/jumbo", Format21c},
	ConstClass:           {"const-class", Format21c},
	MonitorEnter:         {"monitor-enter", Format11x},
	MonitorExit:          {"monitor-exit", Format11x},
	CheckCast:            {"check-cast", Format21c},
	InstanceOf:           {"instance-of", Format22c},
	ArrayLength:          {"array-length", Format12x},
	NewInstance:          {"new-instance", Format21c},
	NewArray:             {"new-array", Format22c},
	Throw:                {"throw", Format11x},
	Goto:                 {"goto", Format10t},
	Goto16:               {"goto/16", Format10t},
	Goto32:               {"goto/32", Format10t},
	PackedSwitch:         {"packed-switch", Format21t},
	SparseSwitch:         {"sparse-switch", Format21t},
	CmplFloat:            {"cmpl-float", Format23x},
	CmpgFloat:            {"cmpg-float", Format23x},
	CmpLong:              {"cmp-long", Format23x},
	IfEq:                 {"if-eq", Format22t},
	IfNe:                 {"if-ne", Format22t},
	IfLt:                 {"if-lt", Format22t},
	IfGe:                 {"if-ge", Format22t},
	IfGt:                 {"if-gt", Format22t},
	IfLe:                 {"if-le", Format22t},
	IfEqz:                {"if-eqz", Format21t},
	IfNez:                {"if-nez", Format21t},
	IfLtz:                {"if-ltz", Format21t},
	IfGez:                {"if-gez", Format21t},
	IfGtz:                {"if-gtz", Format21t},
	IfLez:                {"if-lez", Format21t},
	Aget:                 {"aget", Format23x},
	AgetObject:           {"aget-object", Format23x},
	AgetBoolean:          {"aget-boolean", Format23x},
	Aput:                 {"aput", Format23x},
	AputObject:           {"aput-object", Format23x},
	AputBoolean:          {"aput-boolean", Format23x},
	Iget:                 {"iget", Format22c},
	IgetWide:             {"iget-wide", Format22c},
	IgetObject:           {"iget-object", Format22c},
	IgetBoolean:          {"iget-boolean", Format22c},
	Iput:                 {"iput", Format22c},
	IputWide:             {"iput-wide", Format22c},
	IputObject:           {"iput-object", Format22c},
	IputBoolean:          {"iput-boolean", Format22c},
	Sget:                 {"sget", Format21c},
	SgetWide:             {"sget-wide", Format21c},
	SgetObject:           {"sget-object", Format21c},
	SgetBoolean:          {"sget-boolean", Format21c},
	Sput:                 {"sput", Format21c},
	SputWide:             {"sput-wide", Format21c},
	SputObject:           {"sput-object", Format21c},
	SputBoolean:          {"sput-boolean", Format21c},
	InvokeVirtual:        {"invoke-virtual", Format35c},
	InvokeSuper:          {"invoke-super", Format35c},
	InvokeDirect:         {"invoke-direct", Format35c},
	InvokeStatic:         {"invoke-static", Format35c},
	InvokeInterface:      {"invoke-interface", Format35c},
	InvokeVirtualRange:   {"invoke-virtual/range", Format3rc},
	InvokeSuperRange:     {"invoke-super/range", Format3rc},
	InvokeDirectRange:    {"invoke-direct/range", Format3rc},
	InvokeStaticRange:    {"invoke-static/range", Format3rc},
	InvokeInterfaceRange: {"invoke-interface/range", Format3rc},
	NegInt:               {"neg-int", Format12x},
	NotInt:               {"not-int", Format12x},
	IntToLong:            {"int-to-long", Format12x},
	IntToFloat:           {"int-to-float", Format12x},
	LongToInt:            {"long-to-int", Format12x},
	AddInt:               {"add-int", Format23x},
	SubInt:               {"sub-int", Format23x},
	MulInt:               {"mul-int", Format23x},
	DivInt:               {"div-int", Format23x},
	RemInt:               {"rem-int", Format23x},
	AndInt:               {"and-int", Format23x},
	OrInt:                {"or-int", Format23x},
	XorInt:               {"xor-int", Format23x},
	AddInt2Addr:          {"add-int/2addr", Format12x},
	SubInt2Addr:          {"sub-int/2addr", Format12x},
	AddIntLit8:           {"add-int/lit8", Format22s},
	AddIntLit16:          {"add-int/lit16", Format22s},
	RsubInt:              {"rsub-int", Format22s},
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodes))
	for op, info := range opcodes {
		m[info.name] = Opcode(op)
	}
	return m
}()

// LookupOpcode returns the opcode for a smali mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// MustLookupOpcode is like LookupOpcode, but panics if the mnemonic is
// unknown. It is intended for package-level fingerprint declarations.
func MustLookupOpcode(name string) Opcode {
	op, ok := LookupOpcode(name)
	if !ok {
		panic("bytecode: unknown opcode " + name)
	}
	return op
}

// Valid returns true if op is a known opcode.
func (op Opcode) Valid() bool {
	return op < numOpcodes
}

// Format returns the operand layout of op.
func (op Opcode) Format() Format {
	return opcodes[op].format
}

// String returns the smali mnemonic.
func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("Opcode(%d)", uint16(op))
	}
	return opcodes[op].name
}

// LoadsString returns true if op loads a string constant.
func (op Opcode) LoadsString() bool {
	return op == ConstString || op == ConstStringJumbo
}
