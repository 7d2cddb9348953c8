package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseP1689ExportedModule(t *testing.T) {
	doc := []byte(`{
		"revision": 0,
		"rules": [{
			"primary-output": "a.o",
			"provides": [{"logical-name": "a", "source-path": "a.ixx"}],
			"requires": [{"logical-name": "std"}, {"logical-name": "a:part"}]
		}]
	}`)
	res, err := parseP1689(doc)
	require.NoError(t, err)
	require.Equal(t, "a", res.Name)
	require.True(t, res.Exported)
	require.Equal(t, []string{"std", "a:part"}, res.Deps)
}

func TestParseP1689ClassicalUnit(t *testing.T) {
	doc := []byte(`{
		"revision": 0,
		"rules": [{
			"primary-output": "main.o",
			"requires": [{"logical-name": "a"}]
		}]
	}`)
	res, err := parseP1689(doc)
	require.NoError(t, err)
	require.Equal(t, "", res.Name)
	require.False(t, res.Exported)
	require.Equal(t, []string{"a"}, res.Deps)
}

func TestParseMakeDepfileSkipsTargetAndSource(t *testing.T) {
	out := "main.o: main.cpp header.h \\\n  other.h\n"
	headers := parseMakeDepfile(out, "main.cpp")
	require.Equal(t, []string{"header.h", "other.h"}, headers)
}

func TestModuleMapFlagsDeterministicOrder(t *testing.T) {
	flags := moduleMapFlags(map[string]string{"b": "/pcm/b.pcm", "a": "/pcm/a.pcm"})
	require.Equal(t, []string{"-fmodule-file=a=/pcm/a.pcm", "-fmodule-file=b=/pcm/b.pcm"}, flags)
}

func TestQuoteCommandQuotesArgsWithSpaces(t *testing.T) {
	cmd := quoteCommand("clang++", []string{"-DFOO=bar baz", "-c"})
	require.Equal(t, `clang++ "-DFOO=bar baz" -c`, cmd)
}
