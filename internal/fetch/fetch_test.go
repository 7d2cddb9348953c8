package fetch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/modbuild/modbuild/internal/config"
	"github.com/stretchr/testify/require"
)

func TestResolvePathRefIsProjectRelative(t *testing.T) {
	dir, err := Resolve(config.PackageRef{Path: "../vendor/zlib"}, "/unused", "/srv/widgets")
	require.NoError(t, err)
	require.Equal(t, filepath.Clean("/srv/vendor/zlib"), dir)
}

func TestResolvePathRefAbsoluteIsUnchanged(t *testing.T) {
	dir, err := Resolve(config.PackageRef{Path: "/opt/zlib"}, "/unused", "/srv/widgets")
	require.NoError(t, err)
	require.Equal(t, "/opt/zlib", dir)
}

func TestResolveNameRefReusesAlreadyFetchedDir(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, sanitizeRefName("gh:zeozeozeo/libhelloworld"))
	require.NoError(t, os.MkdirAll(existing, 0o755))

	dir, err := Resolve(config.PackageRef{Name: "gh:zeozeozeo/libhelloworld"}, root, "/srv/widgets")
	require.NoError(t, err)
	require.Equal(t, existing, dir)
}

func TestResolveRejectsEmptyRef(t *testing.T) {
	_, err := Resolve(config.PackageRef{}, "/unused", "/srv/widgets")
	require.Error(t, err)
}

func TestParseGitRefSplitsBranchAndRevision(t *testing.T) {
	ref := parseGitRef("someone/something@feature-branch#12345abc")
	require.Equal(t, "someone/something.git", ref.cleanURL)
	require.Equal(t, "feature-branch", ref.branch)
	require.Equal(t, "12345abc", ref.commitOrTag)
}

func TestSingleRootDirDetectsCommonPrefix(t *testing.T) {
	require.Equal(t, "pkg-1.0/", singleRootDir([]string{"pkg-1.0/", "pkg-1.0/a.txt", "pkg-1.0/b.txt"}))
	require.Equal(t, "", singleRootDir([]string{"a.txt", "b.txt"}))
}

