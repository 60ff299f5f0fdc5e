package packagename

import (
	"testing"
	"testing/fstest"

	"github.com/pgaskin/fingerpatch/bytecode"
	"github.com/pgaskin/fingerpatch/patch"
	"github.com/pgaskin/fingerpatch/patcher"
	"github.com/pgaskin/fingerpatch/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifest = `<?xml version="1.0" encoding="utf-8"?>
<manifest xmlns:android="http://schemas.android.com/apk/res/android" package="com.example.app" android:versionCode="1">
  <application android:label="Example"/>
</manifest>`

func run(t *testing.T, ps ...*patch.Patch) (string, error) {
	t.Helper()
	t.Cleanup(PackageName.Reset)

	c, err := bytecode.NewContainer()
	require.NoError(t, err)
	ctx := patch.NewContext(c, resource.NewEditor(fstest.MapFS{
		Manifest: {Data: []byte(manifest)},
	}))

	p := patcher.New(ctx)
	require.NoError(t, p.Add(ps...))
	if err := p.Execute(); err != nil {
		return "", err
	}
	buf, ok := ctx.Resources.Committed(Manifest)
	require.True(t, ok, "manifest should have been committed")
	return string(buf), nil
}

func TestRegistered(t *testing.T) {
	p, ok := patch.Get("Change package name")
	require.True(t, ok)
	assert.Same(t, Patch, p)
	assert.False(t, p.Use)
	assert.Same(t, PackageName, p.Option("packageName"))
}

func TestDefault(t *testing.T) {
	out, err := run(t, Patch)
	require.NoError(t, err)
	assert.Contains(t, out, `package="com.example.app.revanced"`)
	assert.Contains(t, out, `android:versionCode="1"`)
}

func TestOption(t *testing.T) {
	require.NoError(t, PackageName.Set("org.example.renamed"))
	out, err := run(t, Patch)
	require.NoError(t, err)
	assert.Contains(t, out, `package="org.example.renamed"`)
}

func TestValidation(t *testing.T) {
	t.Cleanup(PackageName.Reset)
	for _, v := range []string{"", "example", "Com.example", "com..example", "com.example.", "1com.example", "com.example-app"} {
		err := PackageName.Set(v)
		assert.ErrorIs(t, err, patch.ErrValueValidation, "%q", v)
	}
	assert.False(t, PackageName.IsSet())
	for _, v := range []string{"com.example", "com.example_app.x2", Default} {
		assert.NoError(t, PackageName.Set(v), "%q", v)
	}
	assert.False(t, PackageName.IsSet(), "setting the default unsets the option")
	assert.NoError(t, PackageName.SetAny("a.b"))
	assert.Equal(t, "a.b", PackageName.Get())
}

func TestFallback(t *testing.T) {
	var got []string
	fork := &patch.Patch{
		Name:         "Fork",
		Dependencies: []*patch.Patch{Patch},
		Execute: func(*patch.Context) error {
			for _, fb := range []string{"com.example.fork", "com.example.other"} {
				n, err := SetOrGetFallbackPackageName(fb)
				if err != nil {
					return err
				}
				got = append(got, n)
			}
			return nil
		},
	}

	out, err := run(t, fork)
	require.NoError(t, err)
	assert.Equal(t, []string{"com.example.fork", "com.example.fork"}, got, "the first fallback wins")
	assert.Contains(t, out, `package="com.example.fork"`)

	got = nil
	require.NoError(t, PackageName.Set("com.example.user"))
	out, err = run(t, fork)
	require.NoError(t, err)
	assert.Equal(t, []string{"com.example.user", "com.example.user"}, got, "the user's choice wins")
	assert.Contains(t, out, `package="com.example.user"`)
}

func TestInvalidFallback(t *testing.T) {
	t.Cleanup(PackageName.Reset)
	_, err := SetOrGetFallbackPackageName("Not A Package")
	assert.ErrorIs(t, err, patch.ErrValueValidation)
	assert.Equal(t, Default, PackageName.Get())
}

func TestMissingManifest(t *testing.T) {
	t.Cleanup(PackageName.Reset)
	c, err := bytecode.NewContainer()
	require.NoError(t, err)
	p := patcher.New(patch.NewContext(c, nil))
	require.NoError(t, p.Add(Patch))

	err = p.Execute()
	var pe *patcher.PatchError
	require.ErrorAs(t, err, &pe)
	assert.Same(t, Patch, pe.Patch)
}
