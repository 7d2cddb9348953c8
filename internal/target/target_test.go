package target

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modbuild/modbuild/internal/compiler"
	"github.com/modbuild/modbuild/internal/errs"
	"github.com/modbuild/modbuild/internal/unit"
	"github.com/stretchr/testify/require"
)

// fakeDriver stands in for a real compiler.Driver in tests: every
// action just writes a marker file at out, so staleness/scheduling
// behavior can be asserted without a real toolchain.
type fakeDriver struct {
	bmiCalls    int
	objectCalls int
	linkCalls   int
}

func (d *fakeDriver) ScanModule(ctx context.Context, src string, extraOpts []string) (compiler.ScanResult, error) {
	return compiler.ScanResult{}, nil
}
func (d *fakeDriver) ScanIncludes(ctx context.Context, src string, extraOpts []string) ([]string, error) {
	return nil, nil
}

func (d *fakeDriver) CompileBMI(ctx context.Context, src, out string, moduleMap map[string]string, extraOpts []string) (compiler.Record, error) {
	d.bmiCalls++
	return compiler.Record{}, writeMarker(out)
}

func (d *fakeDriver) CompileObject(ctx context.Context, src, out string, debug bool, moduleMap map[string]string, extraOpts []string) (compiler.Record, error) {
	d.objectCalls++
	return compiler.Record{}, writeMarker(out)
}

func (d *fakeDriver) Archive(ctx context.Context, objs []string, out string) (compiler.Record, error) {
	d.linkCalls++
	return compiler.Record{}, writeMarker(out)
}

func (d *fakeDriver) Link(ctx context.Context, objs []string, out string, debug bool, extraOpts []string) (compiler.Record, error) {
	d.linkCalls++
	return compiler.Record{}, writeMarker(out)
}

func (d *fakeDriver) SharedLink(ctx context.Context, objs []string, out string, extraOpts []string) (compiler.Record, error) {
	d.linkCalls++
	return compiler.Record{}, writeMarker(out)
}

func writeMarker(out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, []byte("built"), 0o644)
}

func newTestContext(t *testing.T, drv compiler.Driver) *Context {
	t.Helper()
	root := t.TempDir()
	return NewContext("app", root, false, drv, 1)
}

func writeSrc(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("// "+name), 0o644))
	return p
}

// TestSingleModuleChain mirrors the S2 scenario: a.ixx exports module a,
// main.cpp imports it. Expect a BMI build, two object builds, and a
// link, wired through Plan/Graph/RunOn/Wait.
func TestSingleModuleChain(t *testing.T) {
	dir := t.TempDir()
	aSrc := writeSrc(t, dir, "a.ixx")
	mainSrc := writeSrc(t, dir, "main.cpp")

	drv := &fakeDriver{}
	ctx := newTestContext(t, drv)

	units := []unit.Unit{
		{Input: aSrc, Exported: true, ModuleName: "a"},
		{Input: mainSrc, Exported: false, ModuleDeps: []string{"a"}},
	}

	b := NewBuilder("app", units, nil, nil, nil, ArtifactExecutable, "bin/app")
	handle, err := b.Build(ctx)
	require.NoError(t, err)
	require.NotNil(t, handle)

	ctx.Graph.RunOn(1)
	require.NoError(t, handle.TakeFuture().Wait())
	ctx.Graph.Wait()

	require.NoError(t, ctx.Graph.FirstError())
	require.Equal(t, 1, drv.bmiCalls)
	require.Equal(t, 2, drv.objectCalls)
	require.Equal(t, 1, drv.linkCalls)

	out, err := b.Output(ctx)
	require.NoError(t, err)
	require.FileExists(t, out)
}

func TestModuleNameCollisionFailsPlanning(t *testing.T) {
	dir := t.TempDir()
	a1 := writeSrc(t, dir, "a1.ixx")
	a2 := writeSrc(t, dir, "a2.ixx")

	drv := &fakeDriver{}
	ctx := newTestContext(t, drv)

	units := []unit.Unit{
		{Input: a1, Exported: true, ModuleName: "a"},
		{Input: a2, Exported: true, ModuleName: "a"},
	}

	b := NewBuilder("app", units, nil, nil, nil, ArtifactExecutable, "bin/app")
	_, err := b.Build(ctx)
	require.Error(t, err)
}

func TestUnresolvedModuleDepIsModuleNotFound(t *testing.T) {
	dir := t.TempDir()
	mainSrc := writeSrc(t, dir, "main.cpp")

	drv := &fakeDriver{}
	ctx := newTestContext(t, drv)

	units := []unit.Unit{
		{Input: mainSrc, Exported: false, ModuleDeps: []string{"missing"}},
	}

	b := NewBuilder("app", units, nil, nil, nil, ArtifactExecutable, "bin/app")
	_, err := b.Build(ctx)
	var mnf *errs.ModuleNotFound
	require.ErrorAs(t, err, &mnf)
}

func TestModuleDependencyCycleDetected(t *testing.T) {
	dir := t.TempDir()
	aSrc := writeSrc(t, dir, "a.ixx")
	bSrc := writeSrc(t, dir, "b.ixx")

	drv := &fakeDriver{}
	ctx := newTestContext(t, drv)

	units := []unit.Unit{
		{Input: aSrc, Exported: true, ModuleName: "a", ModuleDeps: []string{"b"}},
		{Input: bSrc, Exported: true, ModuleName: "b", ModuleDeps: []string{"a"}},
	}

	b := NewBuilder("app", units, nil, nil, nil, ArtifactExecutable, "bin/app")
	_, err := b.Build(ctx)
	require.Error(t, err)
}

// TestExternalExportProxiesIntoUpstreamOutputRoot builds a library under
// one output root and consumes it from a second builder rooted
// elsewhere, via CreateExternalExport; the library's BMI must be
// scheduled (and land) under the upstream root, not the downstream one.
func TestExternalExportProxiesIntoUpstreamOutputRoot(t *testing.T) {
	libDir := t.TempDir()
	libSrc := writeSrc(t, libDir, "lib.ixx")

	appDir := t.TempDir()
	mainSrc := writeSrc(t, appDir, "main.cpp")

	drv := &fakeDriver{}
	upstreamRoot := t.TempDir()

	libBuilder := NewBuilder("lib", []unit.Unit{
		{Input: libSrc, Exported: true, ModuleName: "lib"},
	}, nil, nil, nil, ArtifactArchive, "liblib.a")

	extExport, err := libBuilder.CreateExternalExport(upstreamRoot)
	require.NoError(t, err)

	appCtx := NewContext("app", t.TempDir(), false, drv, 1)
	appBuilder := NewBuilder("app", []unit.Unit{
		{Input: mainSrc, Exported: false, ModuleDeps: []string{"lib"}},
	}, []ExportLookup{extExport}, nil, nil, ArtifactExecutable, "bin/app")

	handle, err := appBuilder.Build(appCtx)
	require.NoError(t, err)
	require.NotNil(t, handle)

	appCtx.Graph.RunOn(1)
	require.NoError(t, handle.TakeFuture().Wait())
	appCtx.Graph.Wait()
	require.NoError(t, appCtx.Graph.FirstError())

	require.Equal(t, 1, drv.bmiCalls)

	mt, ok := extExport.FindBMI("lib")
	require.True(t, ok)
	bmiOutput := mt.Output(appCtx)
	require.True(t, strings.HasPrefix(bmiOutput, upstreamRoot), "proxied BMI output %q must live under the upstream root %q", bmiOutput, upstreamRoot)
	require.FileExists(t, bmiOutput)
}
