package fingerprint

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStampWritesOnFirstCall(t *testing.T) {
	c := New(t.TempDir())
	path, changed, err := c.Stamp("compileOptions", []string{"-O2", "-DFOO"})
	require.NoError(t, err)
	require.True(t, changed)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "-O2\x1f-DFOO", string(data))
}

func TestStampIsNoopWhenUnchanged(t *testing.T) {
	c := New(t.TempDir())
	path, _, err := c.Stamp("linkOptions", []string{"-lfoo"})
	require.NoError(t, err)

	info1, err := os.Stat(path)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, changed, err := c.Stamp("linkOptions", []string{"-lfoo"})
	require.NoError(t, err)
	require.False(t, changed)

	info2, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, info1.ModTime(), info2.ModTime())
}

func TestStampAdvancesMtimeWhenFlagsChange(t *testing.T) {
	c := New(t.TempDir())
	path, _, err := c.Stamp("compileOptions", []string{"-DFOO=1"})
	require.NoError(t, err)
	info1, err := os.Stat(path)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, changed, err := c.Stamp("compileOptions", []string{"-DFOO=2"})
	require.NoError(t, err)
	require.True(t, changed)

	info2, err := os.Stat(path)
	require.NoError(t, err)
	require.True(t, info2.ModTime().After(info1.ModTime()))
}

func TestCanonicalizeDistinguishesSpacedFlags(t *testing.T) {
	a := Canonicalize([]string{"-D", "FOO BAR"})
	b := Canonicalize([]string{"-D FOO", "BAR"})
	require.NotEqual(t, a, b)
}
