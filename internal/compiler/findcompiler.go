package compiler

import (
	"os"
	"os/exec"
)

var (
	commonCCompilers   = []string{"clang", "gcc", "icx", "icc", "tcc", "cl"}
	commonCxxCompilers = []string{"clang++", "g++", "clang", "gcc", "icpx", "icx", "icpc", "icc", "cl"}
)

// FindCompiler looks for a suitable C or C++ compiler, preferring the CC
// / CXX environment variables, then falling back to a list of common
// names in PATH order.
func FindCompiler(needCxx bool) string {
	cc := os.Getenv("CC")
	cxx := os.Getenv("CXX")

	if needCxx && cxx != "" {
		return cxx
	}
	if !needCxx && cc != "" {
		return cc
	}
	if cxx != "" {
		return cxx
	}
	if cc != "" {
		return cc
	}

	compilersToTry := commonCCompilers
	if needCxx {
		compilersToTry = commonCxxCompilers
	}

	for _, compiler := range compilersToTry {
		if path, err := exec.LookPath(compiler); err == nil {
			return path
		}
	}
	return ""
}

// FindScanner looks for clang-scan-deps, the external P1689 dependency
// scanner the native driver shells out to for ScanModule.
func FindScanner() string {
	if s := os.Getenv("CLANG_SCAN_DEPS"); s != "" {
		return s
	}
	if path, err := exec.LookPath("clang-scan-deps"); err == nil {
		return path
	}
	return "clang-scan-deps"
}
