package unit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modbuild/modbuild/internal/compiler"
	"github.com/stretchr/testify/require"
)

type countingDriver struct {
	compiler.Driver
	scanCalls int
}

func (d *countingDriver) ScanModule(ctx context.Context, src string, extraOpts []string) (compiler.ScanResult, error) {
	d.scanCalls++
	return compiler.ScanResult{Name: "a", Exported: true, Deps: []string{"std"}}, nil
}

func (d *countingDriver) ScanIncludes(ctx context.Context, src string, extraOpts []string) ([]string, error) {
	return []string{"a.h"}, nil
}

func TestGetScansOnceThenReusesSidecar(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.ixx")
	require.NoError(t, os.WriteFile(src, []byte("export module a;"), 0644))

	driver := &countingDriver{}
	c := NewCache(dir, filepath.Join(dir, "cache"), driver)

	u1, err := c.Get(context.Background(), src, nil, "")
	require.NoError(t, err)
	require.Equal(t, "a", u1.ModuleName)
	require.Equal(t, 1, driver.scanCalls)

	// fresh Cache instance (simulating a second invocation): in-memory
	// memo is gone, but the sidecar is still newer than the source.
	c2 := NewCache(dir, filepath.Join(dir, "cache"), driver)
	u2, err := c2.Get(context.Background(), src, nil, "")
	require.NoError(t, err)
	require.Equal(t, u1, u2)
	require.Equal(t, 1, driver.scanCalls, "second build must not re-invoke the scanner")
}

func TestGetRescansWhenSourceChanges(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.ixx")
	require.NoError(t, os.WriteFile(src, []byte("export module a;"), 0644))

	driver := &countingDriver{}
	c := NewCache(dir, filepath.Join(dir, "cache"), driver)
	_, err := c.Get(context.Background(), src, nil, "")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(src, []byte("export module a; // touched"), 0644))

	c2 := NewCache(dir, filepath.Join(dir, "cache"), driver)
	_, err = c2.Get(context.Background(), src, nil, "")
	require.NoError(t, err)
	require.Equal(t, 2, driver.scanCalls, "editing the source must invalidate the sidecar")
}

func TestGetRescansWhenOptionsFingerprintChanges(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.ixx")
	require.NoError(t, os.WriteFile(src, []byte("export module a;"), 0644))
	fp := filepath.Join(dir, "cache", "compileOptions.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(fp), 0755))
	require.NoError(t, os.WriteFile(fp, []byte("-DFOO=1"), 0644))

	driver := &countingDriver{}
	c := NewCache(dir, filepath.Join(dir, "cache"), driver)
	_, err := c.Get(context.Background(), src, nil, fp)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(fp, []byte("-DFOO=2"), 0644))

	c2 := NewCache(dir, filepath.Join(dir, "cache"), driver)
	_, err = c2.Get(context.Background(), src, nil, fp)
	require.NoError(t, err)
	require.Equal(t, 2, driver.scanCalls, "a changed options fingerprint must invalidate every sidecar")
}
