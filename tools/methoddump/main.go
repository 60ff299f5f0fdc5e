// Command methoddump dumps the methods of a listing as JSON, for writing
// fingerprints.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pgaskin/fingerpatch/bytecode"
	"github.com/spf13/pflag"
	"github.com/xi2/xz"
)

type method struct {
	ID          string   `json:"id"`
	Class       string   `json:"class"`
	Name        string   `json:"name"`
	Parameters  []string `json:"parameters"`
	ReturnType  string   `json:"returnType"`
	AccessFlags string   `json:"accessFlags"`
	Length      int      `json:"length"`
	Opcodes     []string `json:"opcodes,omitempty"`
	Strings     []string `json:"strings,omitempty"`
}

func dump(m *bytecode.Method, opcodes bool) method {
	d := method{
		ID:          m.ID(),
		Class:       bytecode.DecodeDescriptor(m.Class),
		Name:        m.Name,
		Parameters:  []string{},
		ReturnType:  bytecode.DecodeDescriptor(m.ReturnType),
		AccessFlags: m.AccessFlags.String(),
		Length:      m.Len(),
	}
	for _, p := range m.Parameters {
		d.Parameters = append(d.Parameters, bytecode.DecodeDescriptor(p))
	}
	for _, insn := range m.Instructions {
		if opcodes {
			d.Opcodes = append(d.Opcodes, insn.Opcode.String())
		}
		if insn.Opcode.LoadsString() {
			d.Strings = append(d.Strings, insn.Literal)
		}
	}
	return d
}

func main() {
	output := pflag.StringP("output", "o", "methoddump.out.json", "the file to write the JSON to")
	filter := pflag.StringP("class", "c", "", "only dump classes whose descriptor starts with this")
	opcodes := pflag.BoolP("opcodes", "p", false, "include the opcodes of each method")
	help := pflag.BoolP("help", "h", false, "show this help text")
	pflag.Parse()

	if *help || pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "methoddump dumps the methods from a listing (optionally xz-compressed)")
		fmt.Fprintln(os.Stderr, "Usage: methoddump [OPTIONS] LISTING_FILE")
		pflag.PrintDefaults()
		os.Exit(1)
	}

	f, err := os.Open(pflag.Arg(0))
	if err != nil {
		panic(err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(pflag.Arg(0), ".xz") {
		if r, err = xz.NewReader(r, 0); err != nil {
			panic(err)
		}
	}

	c, err := bytecode.ReadListing(r)
	if err != nil {
		panic(err)
	}

	of, err := os.Create(*output)
	if err != nil {
		panic(err)
	}

	var n int
	fmt.Fprintf(of, "[\n")
	for _, cls := range c.Classes {
		if !strings.HasPrefix(cls.Type, *filter) {
			continue
		}
		for _, m := range cls.Methods {
			if n != 0 {
				fmt.Fprintf(of, ",\n")
			}
			buf, _ := json.Marshal(dump(m, *opcodes))
			of.Write(buf)
			n++
		}
	}
	fmt.Fprintf(of, "]\n")

	of.Close()
	os.Exit(0)
}
