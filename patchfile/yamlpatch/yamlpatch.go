// Package yamlpatch reads declarative fingerprint and hook patches from YAML.
//
// A patch file is a mapping of patch names to a list of instructions, one per
// bullet:
//
//	Hide create button:
//	  - Enabled: yes
//	  - Description: Hides the create button.
//	  - Fingerprint:
//	      Name: CreateButton
//	      Pattern: [invoke-virtual, move-result-object]
//	      Strings: [create_button]
//	  - InjectHook:
//	      Fingerprint: CreateButton
//	      At: PatternEnd
//	      Template: invoke-static {v$X}, Lhooks;->hide(Landroid/view/View;)V
package yamlpatch

import (
	"sort"

	"github.com/pgaskin/fingerpatch/bytecode"
	"github.com/pgaskin/fingerpatch/fingerprint"
	"github.com/pgaskin/fingerpatch/patch"
	"github.com/pgaskin/fingerpatch/patchfile"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PatchSet represents a series of patches, in the order they were defined.
type PatchSet struct {
	names   []string
	patches map[string]Patch
}

// Parse parses a PatchSet from a buf.
func Parse(buf []byte) (patchfile.PatchSet, error) {
	patchfile.Log("parsing patch file\n")
	var root yaml.Node
	if err := yaml.Unmarshal(buf, &root); err != nil {
		return nil, errors.Wrap(err, "error parsing patch file")
	}

	ps := &PatchSet{patches: map[string]Patch{}}
	if len(root.Content) == 0 {
		return ps, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, errors.Errorf("error parsing patch file: line %d: expected a mapping of patch names", doc.Line)
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		k, v := doc.Content[i], doc.Content[i+1]
		if _, ok := ps.patches[k.Value]; ok {
			return nil, errors.Errorf("error parsing patch file: line %d: duplicate patch `%s`", k.Line, k.Value)
		}
		var pn PatchNode
		if err := v.DecodeStrict(&pn); err != nil {
			return nil, errors.Wrapf(err, "error parsing patch file: line %d: patch `%s`", v.Line, k.Value)
		}
		p, err := pn.ToPatch()
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing patch file: patch `%s`", k.Value)
		}
		patchfile.Log("  parsed patch `%s` (%d instructions)\n", k.Value, len(p))
		ps.names = append(ps.names, k.Value)
		ps.patches[k.Value] = p
	}
	return ps, nil
}

// Validate validates the PatchSet.
func (ps *PatchSet) Validate() error {
	fps := map[string]string{}
	for _, n := range ps.names {
		for _, i := range ps.patches[n] {
			if i.Fingerprint != nil {
				if o, ok := fps[i.Fingerprint.Name]; ok {
					return errors.Errorf("fingerprint `%s` in `%s` already defined in `%s`", i.Fingerprint.Name, n, o)
				}
				fps[i.Fingerprint.Name] = n
			}
		}
	}

	for _, n := range ps.names {
		var ec, dc, depc int
		for _, i := range ps.patches[n] {
			switch {
			case i.Enabled != nil:
				ec++
			case i.Description != nil:
				dc++
			case i.Dependencies != nil:
				depc++
			case i.Compatible != nil:
				if _, err := i.Compatible.ToCompatibility(); err != nil {
					return errors.Wrapf(err, "patch `%s`", n)
				}
			case i.Fingerprint != nil:
				if i.Fingerprint.Name == "" {
					return errors.Errorf("unnamed fingerprint in `%s`", n)
				}
				if _, err := i.Fingerprint.ToFingerprint(); err != nil {
					return errors.Wrapf(err, "patch `%s`", n)
				}
			case i.ResolveWithin != nil:
				for _, f := range []string{i.ResolveWithin.Fingerprint, i.ResolveWithin.Within} {
					if _, ok := fps[f]; !ok {
						return errors.Errorf("ResolveWithin: unknown fingerprint `%s` in `%s`", f, n)
					}
				}
				if i.ResolveWithin.Fingerprint == i.ResolveWithin.Within {
					return errors.Errorf("ResolveWithin: fingerprint `%s` cannot be resolved within itself in `%s`", i.ResolveWithin.Fingerprint, n)
				}
			case i.InjectHook != nil, i.AddInstructions != nil:
				var a Anchor
				if i.InjectHook != nil {
					a = i.InjectHook.Anchor
				} else {
					a = i.AddInstructions.Anchor
				}
				if err := a.validate(); err != nil {
					return errors.Wrapf(err, "patch `%s`", n)
				}
				if _, ok := fps[a.Fingerprint]; !ok {
					return errors.Errorf("unknown fingerprint `%s` in `%s`", a.Fingerprint, n)
				}
			default:
				return errors.Errorf("internal error while validating `%s` (you should report this as a bug)", n)
			}
		}
		patchfile.Log("  ec:%d, dc:%d, depc:%d\n", ec, dc, depc)
		if ec < 1 {
			return errors.Errorf("no `Enabled` option in `%s`", n)
		} else if ec > 1 {
			return errors.Errorf("more than one `Enabled` option in `%s`", n)
		}
		if dc > 1 {
			return errors.Errorf("more than one `Description` option in `%s` (use comments to describe individual lines)", n)
		}
		if depc > 1 {
			return errors.Errorf("more than one `Dependencies` option in `%s`", n)
		}
	}
	return nil
}

// Patches converts the PatchSet into patches. The PatchSet must be valid.
func (ps *PatchSet) Patches() ([]*patch.Patch, error) {
	fps := map[string]*fingerprint.Fingerprint{}
	for _, n := range ps.names {
		for _, i := range ps.patches[n] {
			if i.Fingerprint != nil {
				f, err := i.Fingerprint.ToFingerprint()
				if err != nil {
					return nil, errors.Wrapf(err, "patch `%s`", n)
				}
				fps[f.Name()] = f
			}
		}
	}

	// fingerprints which are resolved within others aren't resolved broadly
	narrowed := map[string]bool{}
	for _, n := range ps.names {
		for _, i := range ps.patches[n] {
			if i.ResolveWithin != nil {
				narrowed[i.ResolveWithin.Fingerprint] = true
			}
		}
	}

	pts := make([]*patch.Patch, len(ps.names))
	byName := map[string]*patch.Patch{}
	deps := map[*patch.Patch][]string{}
	for x, n := range ps.names {
		pt := &patch.Patch{Name: n}
		var steps []*Instruction
		for _, i := range ps.patches[n] {
			switch {
			case i.Enabled != nil:
				pt.Use = bool(*i.Enabled)
			case i.Description != nil:
				pt.Description = string(*i.Description)
			case i.Dependencies != nil:
				deps[pt] = *i.Dependencies
			case i.Compatible != nil:
				c, err := i.Compatible.ToCompatibility()
				if err != nil {
					return nil, errors.Wrapf(err, "patch `%s`", n)
				}
				pt.Compatible = append(pt.Compatible, c)
			case i.Fingerprint != nil:
				if !narrowed[i.Fingerprint.Name] {
					pt.Fingerprints = append(pt.Fingerprints, fps[i.Fingerprint.Name])
				}
			default:
				steps = append(steps, i)
			}
		}
		pt.Execute = execute(n, steps, fps)
		pts[x] = pt
		byName[n] = pt
	}

	for _, pt := range pts {
		for _, d := range deps[pt] {
			if p, ok := byName[d]; ok {
				pt.Dependencies = append(pt.Dependencies, p)
			} else if p, ok := patch.Get(d); ok {
				pt.Dependencies = append(pt.Dependencies, p)
			} else {
				return nil, errors.Errorf("unknown dependency `%s` of `%s`", d, pt.Name)
			}
		}
	}
	return pts, nil
}

// op is a pending change to a method.
type op struct {
	point int // insertion point
	apply func() error
}

func execute(name string, steps []*Instruction, fps map[string]*fingerprint.Fingerprint) func(*patch.Context) error {
	return func(ctx *patch.Context) error {
		patchfile.Log("applying patch `%s`\n", name)

		var order []*bytecode.Method
		ops := map[*bytecode.Method][]op{}
		for _, i := range steps {
			switch {
			case i.ResolveWithin != nil:
				r := *i.ResolveWithin
				patchfile.Log("  ResolveWithin(%#v)\n", r)
				within, err := ctx.MustResult(fps[r.Within])
				if err != nil {
					return errors.Wrapf(err, "ResolveWithin `%s`", r.Fingerprint)
				}
				if r.Class {
					_, err = ctx.ResolveInClass(fps[r.Fingerprint], within.Class)
				} else {
					_, err = ctx.ResolveWithin(fps[r.Fingerprint], within.Method, within.Class)
				}
				if err != nil {
					return errors.Wrapf(err, "ResolveWithin `%s`", r.Within)
				}
			case i.InjectHook != nil, i.AddInstructions != nil:
				res, o, err := prepare(ctx, i, fps)
				if err != nil {
					return err
				}
				if _, ok := ops[res.Method]; !ok {
					order = append(order, res.Method)
				}
				ops[res.Method] = append(ops[res.Method], o)
			default:
				return errors.Errorf("invalid instruction: %#v", i.ToSingleInstruction())
			}
		}

		// every index was computed before anything was changed, so apply the
		// changes from the bottom up (later instructions first at the same
		// point so they end up in the written order)
		for _, m := range order {
			mops := ops[m]
			for a, b := 0, len(mops)-1; a < b; a, b = a+1, b-1 {
				mops[a], mops[b] = mops[b], mops[a]
			}
			sort.SliceStable(mops, func(a, b int) bool {
				return mops[a].point > mops[b].point
			})
			for _, o := range mops {
				if err := o.apply(); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

func prepare(ctx *patch.Context, i *Instruction, fps map[string]*fingerprint.Fingerprint) (*fingerprint.Result, op, error) {
	var a Anchor
	if i.InjectHook != nil {
		a = i.InjectHook.Anchor
	} else {
		a = i.AddInstructions.Anchor
	}
	r, err := ctx.MustResult(fps[a.Fingerprint])
	if err != nil {
		return nil, op{}, err
	}
	idx, err := a.Index(r)
	if err != nil {
		return nil, op{}, err
	}
	m := r.Method

	switch {
	case i.InjectHook != nil:
		h := *i.InjectHook
		patchfile.Log("  InjectHook(%s, %d, %#v)\n", m.ID(), idx, h.Template)
		return r, op{idx + 1, func() error {
			return errors.Wrapf(ctx.Injector.InjectHook(m, h.Template, idx), "InjectHook %s", a.Fingerprint)
		}}, nil
	default:
		ai := *i.AddInstructions
		if ai.RegisterFrom == nil {
			patchfile.Log("  AddInstructions(%s, %d, %#v)\n", m.ID(), idx, ai.Text)
			return r, op{idx, func() error {
				return errors.Wrapf(ctx.Injector.AddInstructions(m, idx, ai.Text), "AddInstructions %s", a.Fingerprint)
			}}, nil
		}
		src, err := m.Instruction(idx + *ai.RegisterFrom)
		if err != nil {
			return nil, op{}, errors.Wrap(err, "AddInstructions: RegisterFrom")
		}
		reg, ok := src.RegisterA()
		if !ok {
			return nil, op{}, errors.Errorf("AddInstructions: RegisterFrom: %s does not write to a register", src.Opcode)
		}
		patchfile.Log("  AddInstructions(%s, %d, %#v, v%d)\n", m.ID(), idx, ai.Text, reg)
		return r, op{idx, func() error {
			return errors.Wrapf(ctx.Injector.Inject(m, ai.Text, idx, reg), "AddInstructions %s", a.Fingerprint)
		}}, nil
	}
}

func init() {
	patchfile.RegisterFormat("yaml", Parse)
}
