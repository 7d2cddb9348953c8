package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T, dir, name string, packages []string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	pkgList := ""
	for i, p := range packages {
		if i > 0 {
			pkgList += ", "
		}
		pkgList += `{"path": "` + p + `"}`
	}

	content := `{"name": "` + name + `", "packages": [` + pkgList + `]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.json"), []byte(content), 0o644))
}

func TestResolveTreeBuildsDependencyOrder(t *testing.T) {
	root := t.TempDir()
	appDir := filepath.Join(root, "app")
	libDir := filepath.Join(root, "lib")

	writeProject(t, libDir, "lib", nil)
	writeProject(t, appDir, "app", []string{"../lib"})

	tree, err := ResolveTree(appDir, filepath.Join(root, "packages"))
	require.NoError(t, err)
	require.Equal(t, "app", tree.Project.Name)
	require.Len(t, tree.Deps, 1)
	require.Equal(t, "lib", tree.Deps[0].Project.Name)

	order := Flatten(tree)
	require.Len(t, order, 2)
	require.Equal(t, "lib", order[0].Project.Name)
	require.Equal(t, "app", order[1].Project.Name)
}

func TestResolveTreeDetectsCycle(t *testing.T) {
	root := t.TempDir()
	aDir := filepath.Join(root, "a")
	bDir := filepath.Join(root, "b")

	writeProject(t, aDir, "a", []string{"../b"})
	writeProject(t, bDir, "b", []string{"../a"})

	_, err := ResolveTree(aDir, filepath.Join(root, "packages"))
	require.Error(t, err)
}
