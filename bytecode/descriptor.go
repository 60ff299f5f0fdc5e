package bytecode

import (
	"fmt"
	"strings"
)

// SplitTypes splits a concatenated list of type descriptors (e.g. the
// parameter list of a method signature) into individual descriptors.
func SplitTypes(s string) ([]string, error) {
	var types []string
	for i := 0; i < len(s); {
		start := i
		for i < len(s) && s[i] == '[' {
			i++
		}
		if i >= len(s) {
			return nil, fmt.Errorf("truncated array type in %q", s)
		}
		switch s[i] {
		case 'L':
			end := strings.IndexByte(s[i:], ';')
			if end < 0 {
				return nil, fmt.Errorf("unterminated class type in %q", s)
			}
			i += end + 1
		case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 'V':
			i++
		default:
			return nil, fmt.Errorf("bad type descriptor %q in %q", s[i], s)
		}
		types = append(types, s[start:i])
	}
	return types, nil
}

// ParseSignature parses a method signature in the form name(params)ret.
func ParseSignature(sig string) (name string, params []string, ret string, err error) {
	lp, rp := strings.IndexByte(sig, '('), strings.IndexByte(sig, ')')
	if lp <= 0 || rp < lp {
		return "", nil, "", fmt.Errorf("bad method signature %q", sig)
	}
	if params, err = SplitTypes(sig[lp+1 : rp]); err != nil {
		return "", nil, "", fmt.Errorf("bad method signature %q: %w", sig, err)
	}
	if rt, err := SplitTypes(sig[rp+1:]); err != nil || len(rt) != 1 {
		return "", nil, "", fmt.Errorf("bad return type in method signature %q", sig)
	}
	return sig[:lp], params, sig[rp+1:], nil
}

// DecodeDescriptor converts a type descriptor into the Java source form (e.g.
// "[Ljava/lang/Object;" to "java.lang.Object[]"). Unknown descriptors are
// returned as-is.
//
// See https://source.android.com/devices/tech/dalvik/dex-format.html#typedescriptor
func DecodeDescriptor(d string) string {
	dims := strings.Count(d, "[")
	if dims != 0 && !strings.HasPrefix(d, strings.Repeat("[", dims)) {
		return d
	}
	t := d[dims:]

	var base string
	switch {
	case strings.HasPrefix(t, "L") && strings.HasSuffix(t, ";"):
		base = strings.ReplaceAll(t[1:len(t)-1], "/", ".")
	case t == "B":
		base = "byte"
	case t == "C":
		base = "char"
	case t == "D":
		base = "double"
	case t == "F":
		base = "float"
	case t == "I":
		base = "int"
	case t == "J":
		base = "long"
	case t == "S":
		base = "short"
	case t == "Z":
		base = "boolean"
	case t == "V":
		base = "void"
	default:
		return d
	}
	return base + strings.Repeat("[]", dims)
}
