package navigation

import (
	"strconv"

	"github.com/pgaskin/fingerpatch/bytecode"
	"github.com/pgaskin/fingerpatch/fingerprint"
)

// AutomotiveString is loaded right after the automotive check when adding the
// create button.
const AutomotiveString = "Android Automotive"

// imageOnlyTabID is the resource id of the image_only_tab layout. It is set
// by ResolvePivotBar before InitializeButtons is resolved.
var imageOnlyTabID int64 = -1

var (
	// PivotBarConstructor is the constructor of the pivot bar.
	PivotBarConstructor = fingerprint.MustNew("PivotBarConstructor",
		fingerprint.AccessFlags(bytecode.AccPublic|bytecode.AccConstructor),
		fingerprint.Strings("com.google.android.apps.youtube.app.endpoint.flags"),
	)

	// InitializeButtons creates the pivot bar buttons. It is resolved within
	// the class of PivotBarConstructor.
	InitializeButtons = fingerprint.MustNew("InitializeButtons",
		fingerprint.ReturnType("V"),
		fingerprint.AccessFlags(bytecode.AccPublic|bytecode.AccFinal),
		fingerprint.Parameters(),
		fingerprint.Custom(func(m *bytecode.Method, _ *bytecode.Class) bool {
			return imageOnlyTabID != -1 && hasLiteral(m, imageOnlyTabID)
		}),
	)

	// PivotBarEnum is where the enum of each button is stored. Resolved
	// within InitializeButtons.
	PivotBarEnum = fingerprint.MustNew("PivotBarEnum",
		fingerprint.Pattern(fingerprint.Ops(
			bytecode.InvokeStatic, // Enum.fromValue(tabOrdinal)
			bytecode.MoveResultObject,
			bytecode.IputObject,
		)...),
	)

	// PivotBarButtonsView is where each button view is created. Resolved
	// within InitializeButtons.
	PivotBarButtonsView = fingerprint.MustNew("PivotBarButtonsView",
		fingerprint.Pattern(fingerprint.Ops(
			bytecode.InvokeVirtualRange,
			bytecode.MoveResultObject,
		)...),
	)

	// PivotBarCreateButtonView is where the create button view is created.
	// Resolved within InitializeButtons.
	PivotBarCreateButtonView = fingerprint.MustNew("PivotBarCreateButtonView",
		fingerprint.Pattern(fingerprint.Ops(
			bytecode.InvokeDirect,
			bytecode.InvokeVirtual,
			bytecode.MoveResultObject,
		)...),
	)

	// AddCreateButtonView decides whether to add the create button.
	AddCreateButtonView = fingerprint.MustNew("AddCreateButtonView",
		fingerprint.Strings("Android Wear", AutomotiveString),
	)
)

// hasLiteral checks whether m loads the numeric constant v.
func hasLiteral(m *bytecode.Method, v int64) bool {
	for _, insn := range m.Instructions {
		switch insn.Opcode {
		case bytecode.Const, bytecode.Const16, bytecode.Const4, bytecode.ConstHigh16:
			if n, err := strconv.ParseInt(insn.Operand, 0, 64); err == nil && n == v {
				return true
			}
		}
	}
	return false
}
