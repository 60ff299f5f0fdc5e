package patch

import (
	"sort"

	"github.com/hashicorp/go-version"
)

// Compatibility is a package a patch is known to work with.
type Compatibility struct {
	Name     string
	Versions []string // any version if empty
}

// Accepts checks whether pkg at ver is compatible. Versions are compared
// numerically by segment (so 19.04.37 equals 19.4.37), falling back to an
// exact string comparison for versions which cannot be parsed. An empty ver
// matches any version.
func (c Compatibility) Accepts(pkg, ver string) bool {
	if pkg != c.Name {
		return false
	}
	if ver == "" || len(c.Versions) == 0 {
		return true
	}
	v, err := version.NewVersion(ver)
	for _, s := range c.Versions {
		if s == ver {
			return true
		}
		if err != nil {
			continue
		}
		if cv, err := version.NewVersion(s); err == nil && cv.Equal(v) {
			return true
		}
	}
	return false
}

// Range returns the lowest and highest parseable versions, or empty strings
// if there are none.
func (c Compatibility) Range() (lo, hi string) {
	vs := make(version.Collection, 0, len(c.Versions))
	for _, s := range c.Versions {
		if v, err := version.NewVersion(s); err == nil {
			vs = append(vs, v)
		}
	}
	if len(vs) == 0 {
		return "", ""
	}
	sort.Sort(vs)
	return vs[0].Original(), vs[len(vs)-1].Original()
}

func (c Compatibility) String() string {
	lo, hi := c.Range()
	switch {
	case lo == "":
		return c.Name
	case lo == hi:
		return c.Name + " " + lo
	default:
		return c.Name + " " + lo + "-" + hi
	}
}
