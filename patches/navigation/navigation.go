// Package navigation hides and swaps the buttons of the navigation (pivot)
// bar.
package navigation

import (
	"fmt"
	"strconv"

	"github.com/pgaskin/fingerpatch/fingerprint"
	"github.com/pgaskin/fingerpatch/patch"
	"github.com/pgaskin/fingerpatch/patchlib"
	"github.com/pgaskin/fingerpatch/resource"
)

// Integrations is the class the hooks call into.
const Integrations = "Lapp/revanced/integrations/youtube/patches/NavigationButtonsPatch;"

// PublicResources is the document containing the resource ids.
const PublicResources = "res/values/public.xml"

const (
	enumHook         = "sput-object v" + patchlib.Placeholder + ", " + Integrations + "->lastNavigationButton:Ljava/lang/Enum;"
	buttonHook       = "invoke-static {v" + patchlib.Placeholder + "}, " + Integrations + "->hideButton(Landroid/view/View;)V"
	createButtonHook = "invoke-static {v" + patchlib.Placeholder + "}, " + Integrations + "->hideCreateButton(Landroid/view/View;)V"
	switchCreate     = "invoke-static {}, " + Integrations + "->switchCreateWithNotificationButton()Z\n" +
		"move-result v" + patchlib.Placeholder
)

var youtube = patch.Compatibility{
	Name: "com.google.android.youtube",
	Versions: []string{
		"18.32.39", "18.37.36", "18.38.44", "18.43.45", "18.44.41", "18.45.43",
		"18.48.39", "18.49.37", "19.01.34", "19.02.39", "19.03.35", "19.03.36",
		"19.04.37",
	},
}

// ResolvePivotBar resolves InitializeButtons for other patches.
var ResolvePivotBar = &patch.Patch{
	Name:         "Resolve pivot bar fingerprints",
	Description:  "Finds the method which creates the navigation bar buttons.",
	Fingerprints: []*fingerprint.Fingerprint{PivotBarConstructor},
	Execute:      resolvePivotBar,
}

// Buttons hooks the navigation bar buttons.
var Buttons = &patch.Patch{
	Name:         "Navigation buttons",
	Description:  "Adds options to hide and change navigation buttons (such as the Shorts button).",
	Use:          true,
	Dependencies: []*patch.Patch{ResolvePivotBar},
	Compatible:   []patch.Compatibility{youtube},
	Fingerprints: []*fingerprint.Fingerprint{AddCreateButtonView},
	Execute:      hookButtons,
}

func resolvePivotBar(ctx *patch.Context) error {
	if err := ctx.Resources.Use(PublicResources, func(d *resource.Document) error {
		els, err := d.Query(`//public[@type='layout'][@name='image_only_tab']`)
		if err != nil {
			return err
		}
		if len(els) == 0 {
			return fmt.Errorf("no id for layout image_only_tab: %w", resource.ErrNotFound)
		}
		id, _ := els[0].Attr("id")
		if imageOnlyTabID, err = strconv.ParseInt(id, 0, 64); err != nil {
			return fmt.Errorf("bad id %q for layout image_only_tab: %w", id, err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("find resource id: %w", err)
	}

	r, err := ctx.MustResult(PivotBarConstructor)
	if err != nil {
		return err
	}
	if _, err := ctx.ResolveInClass(InitializeButtons, r.Class); err != nil {
		return err
	}
	return nil
}

func hookButtons(ctx *patch.Context) error {
	ib, err := ctx.MustResult(InitializeButtons)
	if err != nil {
		return err
	}

	for _, fp := range []*fingerprint.Fingerprint{PivotBarEnum, PivotBarButtonsView} {
		if _, err := ctx.ResolveWithin(fp, ib.Method, ib.Class); err != nil {
			return err
		}
	}
	enum, _ := ctx.Result(PivotBarEnum)
	view, _ := ctx.Result(PivotBarButtonsView)

	if err := ctx.Injector.InjectAll(ib.Method,
		patchlib.Site{Template: enumHook, Target: enum.Scan.Pattern.StartIndex + 2},
		patchlib.Site{Template: buttonHook, Target: view.Scan.Pattern.EndIndex},
	); err != nil {
		return fmt.Errorf("hook buttons: %w", err)
	}

	// hide or switch the create button with the notifications button
	acb, err := ctx.MustResult(AddCreateButtonView)
	if err != nil {
		return err
	}
	si, ok := acb.Scan.Strings.Index(AutomotiveString)
	if !ok {
		return fmt.Errorf("%s: %q not found", AddCreateButtonView.Name(), AutomotiveString)
	}
	check, err := acb.Method.Instruction(si - 1)
	if err != nil {
		return fmt.Errorf("find automotive check: %w", err)
	}
	reg, ok := check.RegisterA()
	if !ok {
		return fmt.Errorf("find automotive check: %s does not write to a register", check.Opcode)
	}
	if err := ctx.Injector.Inject(acb.Method, switchCreate, si-1, reg); err != nil {
		return fmt.Errorf("switch create button: %w", err)
	}

	// the earlier hooks moved everything, so this one is resolved afterwards
	cb, err := ctx.ResolveWithin(PivotBarCreateButtonView, ib.Method, ib.Class)
	if err != nil {
		return err
	}
	if err := ctx.Injector.InjectHook(ib.Method, createButtonHook, cb.Scan.Pattern.EndIndex); err != nil {
		return fmt.Errorf("hook create button: %w", err)
	}
	return nil
}

func init() {
	patch.Register(ResolvePivotBar, Buttons)
}
