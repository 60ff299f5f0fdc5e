package bytecode

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// ReadListing parses a smali-style listing containing one or more classes.
//
//	.class public final Lcom/example/Foo;
//	.super Ljava/lang/Object;
//	.method public static bar(Ljava/lang/String;)V
//	    .registers 2
//	    const-string v0, "hello"
//	    return-void
//	.end method
//
// A new .class directive ends the previous class.
func ReadListing(r io.Reader) (*Container, error) {
	c := &Container{index: map[string]*Class{}}

	var cls *Class
	var m *Method
	var labels []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		directive, rest := line, ""
		if i := strings.IndexFunc(line, unicode.IsSpace); i != -1 {
			directive, rest = line[:i], strings.TrimSpace(line[i:])
		}

		if m != nil {
			switch {
			case directive == ".end" && rest == "method":
				m.EndLabels, labels = labels, nil
				cls.Methods = append(cls.Methods, m)
				m = nil
			case directive == ".registers" || directive == ".locals":
				v, err := strconv.Atoi(rest)
				if err != nil || v < 0 {
					return nil, fmt.Errorf("line %d: bad register count %q", n, rest)
				}
				m.Registers, m.Locals = v, directive == ".locals"
			case strings.HasPrefix(line, ":"):
				labels = append(labels, line[1:])
			case strings.HasPrefix(line, "."):
				return nil, fmt.Errorf("line %d: unsupported directive %s in method", n, directive)
			default:
				insn, err := ParseInstruction(line)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", n, err)
				}
				insn.Labels, labels = labels, nil
				m.Instructions = append(m.Instructions, insn)
			}
			continue
		}

		switch directive {
		case ".class":
			flags, typ, err := splitFlags(rest)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			if _, err := SplitTypes(typ); err != nil || !strings.HasPrefix(typ, "L") {
				return nil, fmt.Errorf("line %d: bad class type %q", n, typ)
			}
			cls = &Class{Type: typ, AccessFlags: flags}
			if err := c.AddClass(cls); err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
		case ".super", ".implements", ".source", ".method":
			if cls == nil {
				return nil, fmt.Errorf("line %d: %s outside of class", n, directive)
			}
			switch directive {
			case ".super":
				cls.SuperClass = rest
			case ".implements":
				cls.Interfaces = append(cls.Interfaces, rest)
			case ".source":
				s, err := strconv.Unquote(rest)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad source file %s", n, rest)
				}
				cls.SourceFile = s
			case ".method":
				flags, sig, err := splitFlags(rest)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", n, err)
				}
				name, params, ret, err := ParseSignature(sig)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", n, err)
				}
				m = &Method{
					Class:       cls.Type,
					Name:        name,
					Parameters:  params,
					ReturnType:  ret,
					AccessFlags: flags,
				}
			}
		default:
			return nil, fmt.Errorf("line %d: unexpected %q", n, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}
	if m != nil {
		return nil, fmt.Errorf("unterminated method %s", m)
	}
	return c, nil
}

// WriteListing writes the container in the format accepted by ReadListing.
func (c *Container) WriteListing(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i, cls := range c.Classes {
		if i != 0 {
			bw.WriteString("\n")
		}
		fmt.Fprintf(bw, ".class %s\n", joinFlags(cls.AccessFlags, cls.Type))
		if cls.SuperClass != "" {
			fmt.Fprintf(bw, ".super %s\n", cls.SuperClass)
		}
		if cls.SourceFile != "" {
			fmt.Fprintf(bw, ".source %s\n", strconv.Quote(cls.SourceFile))
		}
		for _, iface := range cls.Interfaces {
			fmt.Fprintf(bw, ".implements %s\n", iface)
		}
		for _, m := range cls.Methods {
			fmt.Fprintf(bw, "\n.method %s\n", joinFlags(m.AccessFlags, m.Signature()))
			if m.Locals {
				fmt.Fprintf(bw, "    .locals %d\n", m.Registers)
			} else if m.Registers != 0 {
				fmt.Fprintf(bw, "    .registers %d\n", m.Registers)
			}
			for _, insn := range m.Instructions {
				for _, l := range insn.Labels {
					fmt.Fprintf(bw, "    :%s\n", l)
				}
				fmt.Fprintf(bw, "    %s\n", insn)
			}
			for _, l := range m.EndLabels {
				fmt.Fprintf(bw, "    :%s\n", l)
			}
			bw.WriteString(".end method\n")
		}
	}
	return bw.Flush()
}

// splitFlags splits leading access flag keywords from the last field.
func splitFlags(s string) (AccessFlags, string, error) {
	f := strings.Fields(s)
	if len(f) == 0 {
		return 0, "", fmt.Errorf("missing name")
	}
	var flags AccessFlags
	for _, kw := range f[:len(f)-1] {
		v, ok := ParseAccessFlag(kw)
		if !ok {
			return 0, "", fmt.Errorf("unknown access flag %q", kw)
		}
		flags |= v
	}
	return flags, f[len(f)-1], nil
}

func joinFlags(flags AccessFlags, name string) string {
	if flags == 0 {
		return name
	}
	return flags.String() + " " + name
}
