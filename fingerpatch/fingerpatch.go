// Command fingerpatch applies patches to a bytecode listing.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/text"
	"github.com/pgaskin/fingerpatch/bytecode"
	"github.com/pgaskin/fingerpatch/patch"
	"github.com/pgaskin/fingerpatch/patcher"
	"github.com/pgaskin/fingerpatch/patchfile"
	_ "github.com/pgaskin/fingerpatch/patchfile/yamlpatch"
	"github.com/pgaskin/fingerpatch/patchlib"
	_ "github.com/pgaskin/fingerpatch/patches/navigation"
	_ "github.com/pgaskin/fingerpatch/patches/packagename"
	"github.com/pgaskin/fingerpatch/resource"
	"github.com/spf13/pflag"
	"github.com/xi2/xz"
	"gopkg.in/yaml.v3"
)

var version = "unknown"

type config struct {
	In           string                            `yaml:"in"`
	Out          string                            `yaml:"out"`
	Resources    string                            `yaml:"resources,omitempty"`
	ResourcesOut string                            `yaml:"resourcesOut,omitempty"`
	Log          string                            `yaml:"log"`
	Package      string                            `yaml:"package,omitempty"`
	Version      string                            `yaml:"version,omitempty"`
	Patches      map[string]bool                   `yaml:"patches,omitempty"`
	Options      map[string]map[string]interface{} `yaml:"options,omitempty"`
	PatchFiles   []string                          `yaml:"patchFiles,omitempty"`
}

var flog = &log.Logger{Handler: log.HandlerFunc(func(*log.Entry) error { return nil }), Level: log.DebugLevel}

// debug logs to the log file, and to the console if verbose.
func debug(format string, a ...interface{}) {
	msg := strings.TrimRight(fmt.Sprintf(format, a...), "\n")
	flog.Debug(msg)
	log.Debug(msg)
}

func main() {
	cfgfile := pflag.StringP("config", "c", "./fingerpatch.yaml", "the config file to use")
	verbose := pflag.BoolP("verbose", "v", false, "show verbose output")
	force := pflag.BoolP("force", "f", false, "apply patches even if they are not compatible with the target package")
	help := pflag.BoolP("help", "h", false, "show this help text")
	pflag.Parse()

	if *help || pflag.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "Usage: fingerpatch [OPTIONS]\n")
		fmt.Fprintf(os.Stderr, "\nVersion: %s\n\nOptions:\n", version)
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nPatches:\n")
		for _, p := range patch.All() {
			fmt.Fprintf(os.Stderr, "  %-32s %s\n", p.Name, p.Description)
		}
		os.Exit(1)
	}

	log.SetHandler(cli.Default)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	log.Infof("fingerpatch %s", version)

	cfg, err := loadConfig(*cfgfile)
	checkErr(err, "Could not load config")

	logf, err := os.Create(cfg.Log)
	checkErr(err, "Could not open and truncate log file")
	defer logf.Close()
	flog.Handler = text.New(logf)

	patchfile.Log = debug
	patcher.Log = debug
	patchlib.Log = debug
	patcher.Warn = func(format string, a ...interface{}) {
		flog.Warnf(format, a...)
		log.Warnf(format, a...)
	}

	d, _ := os.Getwd()
	debug("fingerpatch %s\n\ndir:%s\ncfg: %#v\n\n", version, d, cfg)

	log.WithField("file", cfg.In).Info("reading listing")
	c, err := readListing(cfg.In)
	checkErr(err, "Could not read input listing")
	debug("read %d classes, %d methods", len(c.Classes), c.NumMethods())

	var fsys fs.FS
	if cfg.Resources != "" {
		fsys = os.DirFS(cfg.Resources)
	}
	ctx := patch.NewContext(c, resource.NewEditor(fsys))
	ctx.Package, ctx.Version = cfg.Package, cfg.Version

	var files []*patch.Patch
	for _, fn := range cfg.PatchFiles {
		log.WithField("file", fn).Info("loading patch file")
		ps, err := patchfile.LoadFile("yaml", fn)
		checkErr(err, "Could not load patch file "+fn)
		files = append(files, ps...)
	}

	all, err := available(files)
	checkErr(err, "Could not load patches")

	ps, err := selectPatches(all, cfg.Patches)
	checkErr(err, "Could not select patches")

	checkErr(setOptions(all, cfg.Options), "Could not set options")

	ctx.Injector.Hook(func(m *bytecode.Method, index int, insns []*bytecode.Instruction) error {
		for i, insn := range insns {
			debug("  %s @%d: %s", m.ID(), index+i, insn)
		}
		return nil
	})

	p := patcher.New(ctx)
	p.Force(*force)
	checkErr(p.Add(ps...), "Could not add patches")
	for _, s := range p.Skipped() {
		log.WithField("patch", s.Name).Warn("skipped incompatible patch")
	}

	order, err := p.Order()
	checkErr(err, "Could not order patches")
	for _, pt := range order {
		log.WithField("patch", pt.Name).Info("applying")
	}
	checkErr(p.Execute(), "Could not apply patches")

	log.WithField("file", cfg.Out).Info("writing listing")
	checkErr(writeListing(c, cfg.Out), "Could not write output listing")

	if cfg.ResourcesOut != "" {
		log.WithField("dir", cfg.ResourcesOut).Info("writing resources")
		checkErr(ctx.Resources.Save(cfg.ResourcesOut), "Could not write resources")
		for _, n := range ctx.Resources.Modified() {
			debug("  wrote %s", n)
		}
	}

	debug("patch success")
	log.Infof("Successfully applied %d patches to %s", len(order), cfg.Out)
}

// loadConfig reads and strictly decodes a config file.
func loadConfig(fn string) (*config, error) {
	buf, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}

	var n yaml.Node
	if err := yaml.Unmarshal(buf, &n); err != nil {
		return nil, err
	}
	cfg := &config{}
	if err := n.DecodeStrict(cfg); err != nil {
		return nil, err
	}

	if cfg.In == "" || cfg.Out == "" || cfg.Log == "" {
		return nil, errors.New("in, out, and log are required")
	}
	if (cfg.Resources == "") != (cfg.ResourcesOut == "") {
		return nil, errors.New("resources and resourcesOut must be specified together")
	}

	// paths are relative to the config file
	dir := filepath.Dir(fn)
	for _, p := range []*string{&cfg.In, &cfg.Out, &cfg.Log, &cfg.Resources, &cfg.ResourcesOut} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	for i, p := range cfg.PatchFiles {
		if !filepath.IsAbs(p) {
			cfg.PatchFiles[i] = filepath.Join(dir, p)
		}
	}
	return cfg, nil
}

// readListing reads a listing, which is decompressed if it ends with .xz.
func readListing(fn string) (*bytecode.Container, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(fn, ".xz") {
		if r, err = xz.NewReader(r, 0); err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
	}
	return bytecode.ReadListing(r)
}

func writeListing(c *bytecode.Container, fn string) error {
	if strings.HasSuffix(fn, ".xz") {
		return errors.New("writing xz-compressed listings is not supported")
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	if err := c.WriteListing(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// available returns the registered patches followed by the patches from patch
// files.
func available(files []*patch.Patch) ([]*patch.Patch, error) {
	all := patch.All()
	for _, p := range files {
		if _, ok := patch.Get(p.Name); ok {
			return nil, fmt.Errorf("patch %q from a patch file conflicts with a built-in patch", p.Name)
		}
		for _, o := range all {
			if o.Name == p.Name {
				return nil, fmt.Errorf("patch %q defined in multiple patch files", p.Name)
			}
		}
		all = append(all, p)
	}
	return all, nil
}

// selectPatches returns the patches which are enabled by default, or by
// enabled.
func selectPatches(all []*patch.Patch, enabled map[string]bool) ([]*patch.Patch, error) {
	byName := map[string]*patch.Patch{}
	for _, p := range all {
		byName[p.Name] = p
	}
	var unknown []string
	for n := range enabled {
		if _, ok := byName[n]; !ok {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) != 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("no such patches: %s", strings.Join(unknown, ", "))
	}

	var ps []*patch.Patch
	for _, p := range all {
		use := p.Use
		if e, ok := enabled[p.Name]; ok {
			use = e
		}
		if use {
			ps = append(ps, p)
		}
	}
	return ps, nil
}

// setOptions sets patch options by patch name and option key.
func setOptions(all []*patch.Patch, opts map[string]map[string]interface{}) error {
	names := make([]string, 0, len(opts))
	for n := range opts {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		var p *patch.Patch
		for _, x := range all {
			if x.Name == n {
				p = x
				break
			}
		}
		if p == nil {
			return fmt.Errorf("no such patch %q", n)
		}
		for k, v := range opts[n] {
			o := p.Option(k)
			if o == nil {
				return fmt.Errorf("patch %q has no option %q", n, k)
			}
			if err := o.SetAny(v); err != nil {
				return fmt.Errorf("patch %q: %w", n, err)
			}
			debug("set option %s.%s = %#v", n, k, o.GetAny())
		}
	}
	return nil
}

func checkErr(err error, msg string) {
	if err == nil {
		return
	}
	if msg != "" {
		flog.Errorf("Fatal: %s: %v", msg, err)
		fmt.Fprintf(os.Stderr, "Fatal: %s: %v\n", msg, err)
	} else {
		flog.Errorf("Fatal: %v", err)
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
	}
	os.Exit(1)
}
