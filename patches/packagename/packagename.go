// Package packagename renames the package in the manifest.
package packagename

import (
	"fmt"
	"regexp"

	"github.com/pgaskin/fingerpatch/patch"
	"github.com/pgaskin/fingerpatch/resource"
)

// Default is the option value which keeps the original package name (with a
// suffix).
const Default = "Default"

// Suffix is appended to the original package name if no package name was set.
const Suffix = ".revanced"

// Manifest is the document containing the package name.
const Manifest = "AndroidManifest.xml"

var packageNameRe = regexp.MustCompile(`^[a-z]\w*(\.[a-z]\w*)+$`)

// PackageName is the package name to rename the app to.
var PackageName = &patch.Option[string]{
	Key:         "packageName",
	Default:     Default,
	Values:      map[string]string{"Default": Default},
	Title:       "Package name",
	Description: "The name of the package to rename the app to.",
	Required:    true,
	Validator:   packageNameRe.MatchString,
}

// Patch changes the package name. It does nothing until it is closed, so other
// patches can still choose a package name with SetOrGetFallbackPackageName.
var Patch = &patch.Patch{
	Name:        "Change package name",
	Description: `Appends "` + Suffix + `" to the package name by default. Changing the package name of the app can lead to unexpected issues.`,
	Use:         false,
	Options:     []patch.AnyOption{PackageName},
	Execute:     func(*patch.Context) error { return nil },
	Close:       rename,
}

// SetOrGetFallbackPackageName sets the package name to fallback if the user
// has not chosen one, and returns the package name which will be used. If
// called multiple times, the first call sets the package name.
func SetOrGetFallbackPackageName(fallback string) (string, error) {
	return PackageName.SetOrGet(fallback)
}

func rename(ctx *patch.Context) error {
	return ctx.Resources.Use(Manifest, func(d *resource.Document) error {
		m, err := d.Element("manifest")
		if err != nil {
			return err
		}
		pkg, ok := m.Attr("package")
		if !ok {
			return fmt.Errorf("%s: manifest has no package attribute", Manifest)
		}
		name := PackageName.Get()
		if name == Default {
			name = pkg + Suffix
		}
		m.SetAttr("package", name)
		return nil
	})
}

func init() {
	patch.Register(Patch)
}
