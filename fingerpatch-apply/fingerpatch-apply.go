// Command fingerpatch-apply applies a single patch file to a listing.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pgaskin/fingerpatch/bytecode"
	"github.com/pgaskin/fingerpatch/patch"
	"github.com/pgaskin/fingerpatch/patcher"
	"github.com/pgaskin/fingerpatch/patchfile"
	_ "github.com/pgaskin/fingerpatch/patchfile/yamlpatch"
	"github.com/pgaskin/fingerpatch/patchlib"
	"github.com/spf13/pflag"
)

var version = "unknown"

func errexit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	os.Exit(1)
}

func main() {
	input := pflag.StringP("input", "i", "", "the listing to patch (required)")
	patchFile := pflag.StringP("patch-file", "p", "", "the file containing the patches (required)")
	output := pflag.StringP("output", "o", "", "the file to write the patched listing to (will be overwritten if exists) (required)")
	patchFormat := pflag.StringP("patch-format", "f", "yaml", fmt.Sprintf("the patch format (one of: %s)", strings.Join(patchfile.GetFormats(), ",")))
	all := pflag.BoolP("all", "a", false, "apply disabled patches too")
	verbose := pflag.BoolP("verbose", "v", false, "show verbose output from patchlib")
	help := pflag.BoolP("help", "h", false, "show this help text")
	pflag.Parse()

	if *help || pflag.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "Usage: fingerpatch-apply [OPTIONS]\n")
		fmt.Fprintf(os.Stderr, "\nVersion: %s\n\nOptions:\n", version)
		pflag.PrintDefaults()
		os.Exit(1)
	}

	if *input == "" || *patchFile == "" || *output == "" {
		errexit("Error: input, patch-file, and output flags are required. See --help for more info.\n")
	}

	if _, ok := patchfile.GetFormat(*patchFormat); !ok {
		errexit("Error: invalid format %s. See --help for more info.\n", *patchFormat)
	}

	if *verbose {
		patchfile.Log = func(format string, a ...interface{}) {
			fmt.Printf(format, a...)
		}
		patchlib.Log = func(format string, a ...interface{}) {
			fmt.Printf(format+"\n", a...)
		}
	}
	patcher.Warn = func(format string, a ...interface{}) {
		fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", a...)
	}

	ps, err := patchfile.LoadFile(*patchFormat, *patchFile)
	if err != nil {
		errexit("Error: could not load patch file: %v\n", err)
	}

	f, err := os.Open(*input)
	if err != nil {
		errexit("Error: could not read input file: %v\n", err)
	}
	c, err := bytecode.ReadListing(f)
	f.Close()
	if err != nil {
		errexit("Error: could not read input file: %v\n", err)
	}

	p := patcher.New(patch.NewContext(c, nil))
	for _, pt := range ps {
		if pt.Use || *all {
			if err := p.Add(pt); err != nil {
				errexit("Error: could not add patch: %v\n", err)
			}
		}
	}

	if err := p.Execute(); err != nil {
		errexit("Error: could not apply patch file: %v\n", err)
	}

	of, err := os.Create(*output)
	if err != nil {
		errexit("Error: could not create output file: %v\n", err)
	}
	if err := c.WriteListing(of); err != nil {
		errexit("Error: could not write output file: %v\n", err)
	}
	if err := of.Close(); err != nil {
		errexit("Error: could not write output file: %v\n", err)
	}

	fmt.Printf("Successfully patched '%s' using '%s' to '%s'\n", *input, *patchFile, *output)
	os.Exit(0)
}
