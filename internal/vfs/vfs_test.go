package vfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNeedsUpdateMissingOutput(t *testing.T) {
	v := New()
	dir := t.TempDir()
	dep := filepath.Join(dir, "dep.o")
	require.NoError(t, os.WriteFile(dep, []byte("x"), 0644))

	needs, err := v.NeedsUpdate(filepath.Join(dir, "out"), []string{dep})
	require.NoError(t, err)
	require.True(t, needs)
}

func TestNeedsUpdateStaleDep(t *testing.T) {
	v := New()
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	dep := filepath.Join(dir, "dep.o")

	require.NoError(t, os.WriteFile(out, []byte("x"), 0644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(out, old, old))
	require.NoError(t, os.WriteFile(dep, []byte("x"), 0644))

	needs, err := v.NeedsUpdate(out, []string{dep})
	require.NoError(t, err)
	require.True(t, needs, "dep is newer than out, rebuild expected")
}

func TestNeedsUpdateFresh(t *testing.T) {
	v := New()
	dir := t.TempDir()
	dep := filepath.Join(dir, "dep.o")
	out := filepath.Join(dir, "out")

	require.NoError(t, os.WriteFile(dep, []byte("x"), 0644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dep, old, old))
	require.NoError(t, os.WriteFile(out, []byte("x"), 0644))

	needs, err := v.NeedsUpdate(out, []string{dep})
	require.NoError(t, err)
	require.False(t, needs)
}

func TestPlannedOutputIsInfinitelyFresh(t *testing.T) {
	v := New()
	dir := t.TempDir()
	dep := filepath.Join(dir, "dep.pcm")
	out := filepath.Join(dir, "out.o")

	// dep does not exist on disk yet, but is planned this invocation.
	v.AddFile(dep)
	require.NoError(t, os.WriteFile(out, []byte("x"), 0644))

	needs, err := v.NeedsUpdate(out, []string{dep})
	require.NoError(t, err)
	require.True(t, needs, "a planned dep must look newer than any existing output")
}

func TestChildInheritsAndMergesBack(t *testing.T) {
	parent := New()
	dir := t.TempDir()
	parentPlanned := filepath.Join(dir, "parent.o")
	childPlanned := filepath.Join(dir, "child.o")

	parent.AddFile(parentPlanned)

	child := parent.Child()
	require.True(t, child.Exists(parentPlanned), "child must see parent's planned set")

	child.AddFile(childPlanned)
	require.False(t, parent.Exists(childPlanned), "parent must not see child's set before merge")

	child.Merge()
	require.True(t, parent.Exists(childPlanned), "parent must see child's set after merge")
}

func TestMissingDepRaisesFileNotFound(t *testing.T) {
	v := New()
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	require.NoError(t, os.WriteFile(out, []byte("x"), 0644))

	_, err := v.NeedsUpdate(out, []string{filepath.Join(dir, "nonexistent")})
	require.Error(t, err)
}
