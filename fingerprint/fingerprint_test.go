package fingerprint

import (
	"strings"
	"testing"

	"github.com/pgaskin/fingerpatch/bytecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insns(t *testing.T, text string) []*bytecode.Instruction {
	t.Helper()
	i, err := bytecode.ParseInstructions(text)
	require.NoError(t, err)
	return i
}

// seq builds a method body from single-letter opcode names, to make pattern
// tests easier to read.
func seq(t *testing.T, s string) []*bytecode.Instruction {
	t.Helper()
	m := map[rune]string{
		'A': "nop",
		'B': "move-result v0",
		'C': "return-void",
		'D': "throw v0",
	}
	var lines []string
	for _, c := range s {
		lines = append(lines, m[c])
	}
	return insns(t, strings.Join(lines, "\n"))
}

var (
	opA = bytecode.Nop
	opB = bytecode.MoveResult
	opC = bytecode.ReturnVoid
	opD = bytecode.Throw
)

func TestScanPattern(t *testing.T) {
	for _, tc := range []struct {
		name    string
		body    string
		pattern []Step
		found   bool
		start   int
		end     int
	}{
		{"Single", "ABCD", Ops(opB, opC), true, 1, 2},
		{"Leftmost", "ABCABC", Ops(opB, opC), true, 1, 2},
		{"AtStart", "ABCD", Ops(opA, opB), true, 0, 1},
		{"AtEnd", "ABCD", Ops(opC, opD), true, 2, 3},
		{"Whole", "ABCD", Ops(opA, opB, opC, opD), true, 0, 3},
		{"Missing", "ABCD", Ops(opB, opD), false, 0, 0},
		{"TooLong", "AB", Ops(opA, opB, opC), false, 0, 0},
		{"EmptyBody", "", Ops(opA), false, 0, 0},
		{"Wildcard", "ABCD", []Step{Op(opA), Any(), Op(opC)}, true, 0, 2},
		{"WildcardLeftmost", "DDAD", []Step{Any(), Op(opD)}, true, 0, 1},
		{"Predicate", "ABCAB", []Step{Op(opA), Match(func(i *bytecode.Instruction) bool { return i.Opcode == opB })}, true, 0, 1},
		{"PredicateRejects", "ABCAB", []Step{Op(opA), Match(func(*bytecode.Instruction) bool { return false })}, false, 0, 0},
		{"NoSteps", "ABCD", nil, false, 0, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r, ok := ScanPattern(seq(t, tc.body), tc.pattern)
			require.Equal(t, tc.found, ok)
			if ok {
				assert.Equal(t, tc.start, r.StartIndex)
				assert.Equal(t, tc.end, r.EndIndex)
			}
		})
	}
}

func TestScanPatternDrift(t *testing.T) {
	// registers and references are ignored by opcode steps
	a := insns(t, "invoke-virtual {v1, v2}, La;->b()Ljava/lang/Object;\nmove-result-object v3\ncheck-cast v3, Lc;")
	b := insns(t, "invoke-virtual {v5, v6}, Lx;->y()Ljava/lang/Object;\nmove-result-object v7\ncheck-cast v7, Lz;")
	p := Ops(bytecode.InvokeVirtual, bytecode.MoveResultObject, bytecode.CheckCast)
	for _, body := range [][]*bytecode.Instruction{a, b} {
		r, ok := ScanPattern(body, p)
		require.True(t, ok)
		assert.Equal(t, PatternScanResult{0, 2}, *r)
	}
}

func TestScanStrings(t *testing.T) {
	body := insns(t, `
		const-string v0, "one"
		nop
		const-string/jumbo v1, "two"
		const-string v0, "one"
		const-string v0, "one!"
		const-class v2, Lone;
	`)

	r, ok := ScanStrings(body, []string{"two", "one"})
	require.True(t, ok)
	assert.Equal(t, []StringMatch{{"two", 2}, {"one", 0}, {"one", 3}}, r.Matches)

	i, ok := r.Index("one")
	assert.True(t, ok)
	assert.Equal(t, 0, i)
	assert.Equal(t, 2, r.MustIndex("two"))
	_, ok = r.Index("three")
	assert.False(t, ok)

	assert.PanicsWithError(t, `MustIndex: string "three" not in scan result`, func() { r.MustIndex("three") })

	_, ok = ScanStrings(body, []string{"one", "three"})
	assert.False(t, ok, "all strings must be found")

	_, ok = ScanStrings(body, []string{"on"})
	assert.False(t, ok, "substrings must not match")

	_, ok = ScanStrings(body, nil)
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("EmptyPattern", Pattern())
	assert.EqualError(t, err, "fingerprint EmptyPattern: empty pattern")

	_, err = New("EmptyStrings", Strings())
	assert.Error(t, err)

	_, err = New("BadOpcode", Pattern(Op(bytecode.Opcode(0xFFFF))))
	assert.Error(t, err)

	_, err = New("NilPredicate", Pattern(Match(nil)))
	assert.Error(t, err)

	_, err = New("NilCustom", Custom(nil))
	assert.Error(t, err)

	assert.Panics(t, func() { MustNew("", nil) })

	steps := Ops(opA, opB)
	f := MustNew("Immutable", Pattern(steps...), Strings("x"))
	steps[0] = Op(opD)
	assert.Equal(t, opA, f.Pattern()[0].Opcode, "fingerprint must not alias the caller's steps")
	f.Pattern()[1] = Any()
	assert.Equal(t, StepOpcode, f.Pattern()[1].Kind)
	assert.Equal(t, []string{"x"}, f.Strings())
	assert.Equal(t, "Immutable", f.Name())
	assert.Equal(t, "*", Any().String())
}

func TestErr(t *testing.T) {
	f := MustNew("SomeFingerprint")
	err := f.Err()
	assert.ErrorIs(t, err, ErrNotFound)
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "SomeFingerprint", re.Fingerprint)
	assert.EqualError(t, err, "failed to resolve SomeFingerprint")
}

const resolveListing = `
.class public final Lcom/example/PivotBar;
.super Ljava/lang/Object;

.method public constructor <init>()V
    return-void
.end method

.method public final initializeButtons(Ljava/util/List;I)V
    invoke-virtual {v1}, Ljava/util/List;->size()I
    move-result v0
    const-string v2, "pivot_bar"
    sget-object v3, Lcom/example/Enum;->HOME:Lcom/example/Enum;
    invoke-static {v3}, Lcom/example/Util;->a(Ljava/lang/Object;)V
    return-void
.end method

.method public final other(Ljava/util/List;I)V
    invoke-virtual {v1}, Ljava/util/List;->size()I
    move-result v0
    return-void
.end method

.class public final Lcom/example/Other;
.super Ljava/lang/Object;

.method public static a()Z
    const-string v0, "pivot_bar"
    const/4 v0, 0x1
    return v0
.end method
`

func TestResolve(t *testing.T) {
	c, err := bytecode.ReadListing(strings.NewReader(resolveListing))
	require.NoError(t, err)
	pivot := c.Class("Lcom/example/PivotBar;")
	initButtons := pivot.Method("initializeButtons(Ljava/util/List;I)V")
	require.NotNil(t, initButtons)

	t.Run("Broad", func(t *testing.T) {
		f := MustNew("InitializeButtons",
			ReturnType("V"),
			AccessFlags(bytecode.AccPublic|bytecode.AccFinal),
			Parameters("Ljava/util/", "I"),
			Pattern(Op(bytecode.InvokeVirtual), Op(bytecode.MoveResult)),
			Strings("pivot_bar"),
		)
		r, ok := f.Resolve(c)
		require.True(t, ok)
		assert.Same(t, initButtons, r.Method)
		assert.Same(t, pivot, r.Class)
		assert.Equal(t, &PatternScanResult{0, 1}, r.Scan.Pattern)
		assert.Equal(t, 2, r.Scan.Strings.MustIndex("pivot_bar"))
	})

	t.Run("OnlyRequestedScans", func(t *testing.T) {
		r, ok := MustNew("Shape", ReturnType("Z")).Resolve(c)
		require.True(t, ok)
		assert.Equal(t, "a", r.Method.Name)
		assert.Nil(t, r.Scan.Pattern)
		assert.Nil(t, r.Scan.Strings)
	})

	t.Run("NotFound", func(t *testing.T) {
		for _, f := range []*Fingerprint{
			MustNew("ReturnType", ReturnType("Ljava/lang/String;")),
			MustNew("Access", AccessFlags(bytecode.AccPrivate)),
			MustNew("ParamCount", Parameters("Ljava/util/List;")),
			MustNew("ParamPrefix", Parameters("Ljava/util/Map;", "I")),
			MustNew("Pattern", Pattern(Op(bytecode.Throw))),
			MustNew("Strings", Strings("pivot_bar", "missing")),
			MustNew("Custom", Custom(func(*bytecode.Method, *bytecode.Class) bool { return false })),
		} {
			_, ok := f.Resolve(c)
			assert.False(t, ok, f.Name())
		}
	})

	t.Run("ShortCircuit", func(t *testing.T) {
		var calls int
		f := MustNew("Expensive",
			ReturnType("Z"),
			Pattern(Op(bytecode.ConstString)),
			Custom(func(*bytecode.Method, *bytecode.Class) bool {
				calls++
				return true
			}),
		)
		_, ok := f.Resolve(c)
		require.True(t, ok)
		assert.Equal(t, 1, calls, "custom predicate should only run on methods passing the cheaper checks")
	})

	t.Run("Narrowed", func(t *testing.T) {
		enum := MustNew("PivotBarEnum", Pattern(Op(bytecode.SgetObject), Op(bytecode.InvokeStatic)))

		r, ok := enum.ResolveMethod(initButtons, pivot)
		require.True(t, ok)
		assert.Equal(t, &PatternScanResult{3, 4}, r.Scan.Pattern)

		_, ok = enum.ResolveMethod(pivot.Method("other(Ljava/util/List;I)V"), pivot)
		assert.False(t, ok)

		r, ok = enum.ResolveClass(pivot)
		require.True(t, ok)
		assert.Same(t, initButtons, r.Method)

		_, ok = enum.ResolveClass(c.Class("Lcom/example/Other;"))
		assert.False(t, ok)
	})

	t.Run("AmbiguousFirstWins", func(t *testing.T) {
		// Known gap: ambiguous fingerprints are not detected, and the first
		// method in iteration order wins.
		f := MustNew("Ambiguous", Strings("pivot_bar"))
		r, ok := f.Resolve(c)
		require.True(t, ok)
		assert.Same(t, initButtons, r.Method)
	})
}
