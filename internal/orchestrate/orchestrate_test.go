package orchestrate

import (
	"testing"

	"github.com/modbuild/modbuild/internal/config"
	"github.com/modbuild/modbuild/internal/target"
	"github.com/stretchr/testify/require"
)

func TestUsageExportFragmentsIncludeLibs(t *testing.T) {
	x := newUsageExport("widgets", config.Usage{
		CompileOption: "-Iinclude",
		LinkOption:    "-Lbuild",
		Libs:          []string{"zlib", "ssl"},
	})
	require.Equal(t, []string{"-Iinclude"}, x.CompileOptionFragment())
	require.Equal(t, []string{"-Lbuild", "-lzlib", "-lssl"}, x.LinkOptionFragment())
}

func TestUsageExportFindBMIMatchesPackageNameOnly(t *testing.T) {
	x := newUsageExport("widgets", config.Usage{PCMPath: "/opt/widgets/module/widgets.pcm"})

	mt, ok := x.FindBMI("widgets")
	require.True(t, ok)
	require.Equal(t, "widgets", mt.ModuleName())

	_, ok = x.FindBMI("something-else")
	require.False(t, ok)
}

func TestUsageExportWithoutPCMPathHasNoBMI(t *testing.T) {
	x := newUsageExport("widgets", config.Usage{})
	_, ok := x.FindBMI("widgets")
	require.False(t, ok)
	_, ok = x.LibraryTarget()
	require.False(t, ok)
}

func TestCacheDirForSanitizesPackageName(t *testing.T) {
	ctx := target.NewContext("app", t.TempDir(), false, nil, 1)
	dir := cacheDirFor(ctx, "gh:zeozeozeo/libhelloworld")
	require.NotContains(t, dir, ":")
	require.Contains(t, dir, "gh_zeozeozeo_libhelloworld")
}

func TestSharedLibSuffixNonEmpty(t *testing.T) {
	require.NotEmpty(t, sharedLibSuffix())
}

func TestLinkLibsFlagsPrefixesEachLib(t *testing.T) {
	require.Equal(t, []string{"-la", "-lb"}, linkLibsFlags([]string{"a", "b"}))
}
