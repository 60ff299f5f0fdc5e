package bytecode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstruction(t *testing.T) {
	for _, tc := range []struct {
		in   string
		op   Opcode
		regs []int
		lit  string
		opnd string
		out  string // if different from in
	}{
		{"nop", Nop, nil, "", "", ""},
		{"return-void", ReturnVoid, nil, "", "", ""},
		{"move-result v3", MoveResult, []int{3}, "", "", ""},
		{"move-object v1, v12", MoveObject, []int{1, 12}, "", "", ""},
		{"const/4 v0, 0x1", Const4, []int{0}, "", "0x1", ""},
		{`const-string v2, "android.hardware.type.automotive"`, ConstString, []int{2}, "android.hardware.type.automotive", "", ""},
		{`const-string v2, "a, \"b\" {c}"`, ConstString, []int{2}, `a, "b" {c}`, "", ""},
		{"sput-object v0, Lfoo/Bar;->last:Ljava/lang/Enum;", SputObject, []int{0}, "", "Lfoo/Bar;->last:Ljava/lang/Enum;", ""},
		{"iget-object v0, p0, Lfoo;->x:I", 0, nil, "", "", "error"},
		{"iget-object v0, v1, Lfoo;->x:I", IgetObject, []int{0, 1}, "", "Lfoo;->x:I", ""},
		{"if-eqz v0, :cond_0", IfEqz, []int{0}, "", ":cond_0", ""},
		{"goto :goto_1", Goto, nil, "", ":goto_1", ""},
		{"invoke-static {}, Lfoo;->bar()Z", InvokeStatic, nil, "", "Lfoo;->bar()Z", ""},
		{"invoke-static { v4 }, Lfoo;->hide(Landroid/view/View;)V", InvokeStatic, []int{4}, "", "Lfoo;->hide(Landroid/view/View;)V", "invoke-static {v4}, Lfoo;->hide(Landroid/view/View;)V"},
		{"invoke-virtual {v0, v1, v2}, Lfoo;->a(II)V", InvokeVirtual, []int{0, 1, 2}, "", "Lfoo;->a(II)V", ""},
		{"invoke-static/range {v2 .. v5}, Lfoo;->a(IIII)V", InvokeStaticRange, []int{2, 3, 4, 5}, "", "Lfoo;->a(IIII)V", ""},
		{"add-int v0, v1, v2", AddInt, []int{0, 1, 2}, "", "", ""},
		{"const-string\tv0, \"x\"", ConstString, []int{0}, "x", "", `const-string v0, "x"`},
		{"move-result \t v3", MoveResult, []int{3}, "", "", "move-result v3"},
		{"frobnicate v0", 0, nil, "", "", "error"},
		{"move-result", 0, nil, "", "", "error"},
		{"move-result v0, v1", 0, nil, "", "", "error"},
		{`const-string v0, "unterminated`, 0, nil, "", "", "error"},
		{"const-string v0, notastring", 0, nil, "", "", "error"},
		{"invoke-static v0, Lfoo;->a()V", 0, nil, "", "", "error"},
	} {
		t.Run(tc.in, func(t *testing.T) {
			insn, err := ParseInstruction(tc.in)
			if tc.out == "error" {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.op, insn.Opcode)
			assert.Equal(t, tc.regs, insn.Registers)
			assert.Equal(t, tc.lit, insn.Literal)
			assert.Equal(t, tc.opnd, insn.Operand)

			exp := tc.in
			if tc.out != "" {
				exp = tc.out
			}
			assert.Equal(t, exp, insn.String())
		})
	}
}

func TestParseInstructions(t *testing.T) {
	insns, err := ParseInstructions(`
		# comment
		invoke-static { }, Lfoo;->sw()Z

		move-result v3
		:cond_0
		:cond_1
		return-void
	`)
	require.NoError(t, err)
	require.Len(t, insns, 3)
	assert.Equal(t, InvokeStatic, insns[0].Opcode)
	assert.Equal(t, []string{"cond_0", "cond_1"}, insns[2].Labels)

	_, err = ParseInstructions("return-void\n:dangling")
	assert.Error(t, err)

	_, err = ParseInstructions("return-void\nbad-op v0")
	assert.EqualError(t, err, `line 2: parse "bad-op v0": unknown opcode "bad-op"`)
}

func TestRegisters(t *testing.T) {
	insn, err := ParseInstruction("move-result-object v7")
	require.NoError(t, err)

	r, ok := insn.RegisterA()
	assert.True(t, ok)
	assert.Equal(t, 7, r)

	require.NoError(t, insn.SetRegister(0, 2))
	assert.Equal(t, "move-result-object v2", insn.String())
	assert.ErrorIs(t, insn.SetRegister(1, 2), ErrNoRegister)
	assert.Error(t, insn.SetRegister(0, -1))

	_, err = insn.Register(3)
	assert.ErrorIs(t, err, ErrNoRegister)

	inv, err := ParseInstruction("invoke-static {v1}, Lfoo;->a(I)V")
	require.NoError(t, err)
	_, ok = inv.RegisterA()
	assert.False(t, ok, "invokes do not have a register A")

	c := insn.Clone()
	require.NoError(t, c.SetRegister(0, 9))
	assert.Equal(t, 2, insn.Registers[0], "clone must not alias registers")
}

func TestInsertInstructions(t *testing.T) {
	mk := func(s string) *Instruction {
		insn, err := ParseInstruction(s)
		require.NoError(t, err)
		return insn
	}
	a, b, c := mk("const/4 v0, 0x0"), mk("const/4 v1, 0x1"), mk("return-void")
	m := &Method{Class: "Lfoo;", Name: "m", ReturnType: "V", Instructions: []*Instruction{a, b, c}}

	h1, h2 := mk("nop"), mk("move-result v0")
	require.NoError(t, m.InsertInstructions(1, h1, h2))
	assert.Equal(t, []*Instruction{a, h1, h2, b, c}, m.Instructions)

	require.NoError(t, m.InsertInstructions(m.Len(), mk("nop")))
	assert.Equal(t, 6, m.Len())

	var pe *PreconditionError
	err := m.InsertInstructions(7, mk("nop"))
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "InsertInstructions", pe.Op)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.ErrorIs(t, m.InsertInstructions(-1, mk("nop")), ErrIndexOutOfRange)

	_, err = m.Instruction(6)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	insn, err := m.Instruction(0)
	require.NoError(t, err)
	assert.Same(t, a, insn)
}

const testListing = `# test
.class public final Lcom/example/Foo;
.super Ljava/lang/Object;
.source "Foo.java"
.implements Ljava/lang/Runnable;

.method public constructor <init>()V
    .registers 1
    invoke-direct {v0}, Ljava/lang/Object;-><init>()V
    return-void
.end method

.method public static bar(Ljava/lang/String;[IZ)Ljava/lang/String;
    .registers 4
    const-string v0, "hello"
    if-eqz v2, :cond_0
    return-object v1
    :cond_0
    return-object v0
.end method

.class Lcom/example/Baz;
.super Ljava/lang/Object;

.method abstract run()V
.end method

.method public static f(II)V
	.locals 1
	return-void
.end method

.method public static g()V
    .locals 0
    return-void
.end method
`

func TestListing(t *testing.T) {
	c, err := ReadListing(strings.NewReader(testListing))
	require.NoError(t, err)
	require.Len(t, c.Classes, 2)
	assert.Equal(t, 5, c.NumMethods())

	foo := c.Class("Lcom/example/Foo;")
	require.NotNil(t, foo)
	assert.Equal(t, AccPublic|AccFinal, foo.AccessFlags)
	assert.Equal(t, "Foo.java", foo.SourceFile)
	assert.Equal(t, []string{"Ljava/lang/Runnable;"}, foo.Interfaces)

	bar := c.Method("Lcom/example/Foo;->bar(Ljava/lang/String;[IZ)Ljava/lang/String;")
	require.NotNil(t, bar)
	assert.Equal(t, []string{"Ljava/lang/String;", "[I", "Z"}, bar.Parameters)
	assert.Equal(t, "Ljava/lang/String;", bar.ReturnType)
	assert.Equal(t, AccPublic|AccStatic, bar.AccessFlags)
	assert.Equal(t, 4, bar.Registers)
	assert.False(t, bar.Locals)

	f := c.Method("Lcom/example/Baz;->f(II)V")
	require.NotNil(t, f)
	assert.Equal(t, 1, f.Registers)
	assert.True(t, f.Locals)
	require.Equal(t, 4, bar.Len())
	assert.Equal(t, []string{"cond_0"}, bar.Instructions[3].Labels)

	assert.Nil(t, c.Method("Lcom/example/Foo;->nope()V"))
	assert.Nil(t, c.Method("garbage"))

	var buf bytes.Buffer
	require.NoError(t, c.WriteListing(&buf))
	first := buf.String()
	c2, err := ReadListing(&buf)
	require.NoError(t, err)
	var buf2 bytes.Buffer
	require.NoError(t, c2.WriteListing(&buf2))
	assert.Equal(t, first, buf2.String(), "listing should be stable")
	assert.Contains(t, first, "    :cond_0\n    return-object v0\n")
	assert.Contains(t, first, ".method public static f(II)V\n    .locals 1\n    return-void\n", "the frame size should not lose the parameters")
	assert.Contains(t, first, ".method public static g()V\n    .locals 0\n")
	assert.NotContains(t, first, ".registers 1\n    return-void")
}

func TestListingErrors(t *testing.T) {
	for _, tc := range []struct{ name, in string }{
		{"MethodOutsideClass", ".method public a()V\n.end method"},
		{"Unterminated", ".class Lfoo;\n.method public a()V\nreturn-void"},
		{"BadFlag", ".class wobbly Lfoo;"},
		{"BadType", ".class public foo"},
		{"Duplicate", ".class Lfoo;\n.class Lfoo;"},
		{"BadInstruction", ".class Lfoo;\n.method a()V\nfrob\n.end method"},
		{"BadDirective", ".class Lfoo;\n.method a()V\n.line 3\n.end method"},
		{"BadSignature", ".class Lfoo;\n.method a(Q)V\n.end method"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadListing(strings.NewReader(tc.in))
			assert.Error(t, err)
		})
	}
}

func TestDecodeDescriptor(t *testing.T) {
	for raw, cooked := range map[string]string{
		"Lfrob/blar/blix;":    "frob.blar.blix",
		"[Ljava/lang/Object;": "java.lang.Object[]",
		"[[B":                 "byte[][]",
		"[C":                  "char[]",
		"D":                   "double",
		"<illegal>":           "<illegal>",
	} {
		assert.Equal(t, cooked, DecodeDescriptor(raw), raw)
	}
}

func TestParseSignature(t *testing.T) {
	name, params, ret, err := ParseSignature("hide([[ILandroid/view/View;J)Z")
	require.NoError(t, err)
	assert.Equal(t, "hide", name)
	assert.Equal(t, []string{"[[I", "Landroid/view/View;", "J"}, params)
	assert.Equal(t, "Z", ret)

	for _, bad := range []string{"()V", "a(", "a()", "a(Lfoo)V", "a()VV", "a([)V"} {
		_, _, _, err := ParseSignature(bad)
		assert.Error(t, err, bad)
	}
}

func TestOpcodes(t *testing.T) {
	for op := Opcode(0); op < numOpcodes; op++ {
		name := op.String()
		require.NotEmpty(t, name, "opcode %d has no name", op)
		back, ok := LookupOpcode(name)
		require.True(t, ok, name)
		assert.Equal(t, op, back, name)
	}
	assert.False(t, numOpcodes.Valid())
	assert.Equal(t, "Opcode(65535)", Opcode(0xFFFF).String())
	assert.Panics(t, func() { MustLookupOpcode("nope") })
}

func TestAccessFlags(t *testing.T) {
	assert.Equal(t, "public static final", (AccPublic | AccStatic | AccFinal).String())
	f, ok := ParseAccessFlag("constructor")
	assert.True(t, ok)
	assert.Equal(t, AccConstructor, f)
}
