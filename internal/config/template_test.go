package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvalTemplateLeavesPlainStringsUntouched(t *testing.T) {
	out, err := EvalTemplate("-Iinclude", TemplateEnv{})
	require.NoError(t, err)
	require.Equal(t, "-Iinclude", out)
}

func TestEvalTemplateSubstitutesProjectDir(t *testing.T) {
	out, err := EvalTemplate("{{ projectDir }}/module/widgets.pcm", TemplateEnv{ProjectDir: "/srv/widgets"})
	require.NoError(t, err)
	require.Equal(t, "/srv/widgets/module/widgets.pcm", out)
}

func TestEvalTemplateSubstitutesEnvLookup(t *testing.T) {
	out, err := EvalTemplate(`-DPREFIX={{ env["PREFIX"] }}`, TemplateEnv{Env: map[string]string{"PREFIX": "/usr/local"}})
	require.NoError(t, err)
	require.Equal(t, "-DPREFIX=/usr/local", out)
}

func TestEvalTemplateReportsCompileError(t *testing.T) {
	_, err := EvalTemplate("{{ not a valid expr ( }}", TemplateEnv{})
	require.Error(t, err)
}

func TestEvalUsageExpandsAllTemplatedFields(t *testing.T) {
	u := Usage{
		PCMPath:       "{{ projectDir }}/a.pcm",
		CompileOption: "-I{{ projectDir }}/include",
		LinkOption:    "-L{{ projectDir }}/lib",
		Libs:          []string{"widgets"},
	}
	expanded, err := u.EvalUsage(TemplateEnv{ProjectDir: "/srv/widgets"})
	require.NoError(t, err)
	require.Equal(t, "/srv/widgets/a.pcm", expanded.PCMPath)
	require.Equal(t, "-I/srv/widgets/include", expanded.CompileOption)
	require.Equal(t, "-L/srv/widgets/lib", expanded.LinkOption)
	require.Equal(t, []string{"widgets"}, expanded.Libs)
}
