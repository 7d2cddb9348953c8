package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/modbuild/modbuild/internal/errs"
)

// NativeDriver shells out to a clang/clang++ toolchain. Module scanning
// is delegated to clang-scan-deps (P1689 JSON), the same external tool
// CMake's C++20 modules support uses — this core, like its teacher,
// never parses the source language itself.
type NativeDriver struct {
	CC, CXX string
	Scanner string
}

// NewNativeDriver resolves CC/CXX/clang-scan-deps from the environment
// or PATH, the way the teacher's cc.go findCompiler does.
func NewNativeDriver() *NativeDriver {
	return &NativeDriver{
		CC:      FindCompiler(false),
		CXX:     FindCompiler(true),
		Scanner: FindScanner(),
	}
}

func isCxxSource(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cpp", ".cc", ".cxx", ".c++", ".ixx", ".cppm", ".mxx":
		return true
	default:
		return false
	}
}

func (d *NativeDriver) compilerFor(src string) string {
	if isCxxSource(src) {
		return d.CXX
	}
	return d.CC
}

func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func runCaptured(ctx context.Context, name string, args ...string) (Record, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	record := Record{Command: quoteCommand(name, args)}
	err := cmd.Run()
	record.Output = buf.String()

	if exitErr, ok := err.(*exec.ExitError); ok {
		record.Status = exitErr.ExitCode()
		return record, &errs.CompileError{Command: record.Command, Output: record.Output, Status: record.Status}
	}
	if err != nil {
		record.Status = -1
		return record, &errs.CompileError{Command: record.Command, Output: record.Output, Status: -1}
	}
	record.Status = 0
	return record, nil
}

func quoteCommand(name string, args []string) string {
	var sb strings.Builder
	sb.WriteString(name)
	for _, a := range args {
		sb.WriteByte(' ')
		if strings.ContainsAny(a, " \t\"") {
			sb.WriteByte('"')
			sb.WriteString(strings.ReplaceAll(a, `"`, `\"`))
			sb.WriteByte('"')
		} else {
			sb.WriteString(a)
		}
	}
	return sb.String()
}

func moduleMapFlags(moduleMap map[string]string) []string {
	names := make([]string, 0, len(moduleMap))
	for name := range moduleMap {
		names = append(names, name)
	}
	sort.Strings(names)

	flags := make([]string, 0, len(names))
	for _, name := range names {
		flags = append(flags, "-fmodule-file="+name+"="+moduleMap[name])
	}
	return flags
}

func (d *NativeDriver) ScanModule(ctx context.Context, src string, extraOpts []string) (ScanResult, error) {
	args := []string{"-format=p1689", "--"}
	args = append(args, d.compilerFor(src))
	args = append(args, extraOpts...)
	args = append(args, "-c", src, "-o", src+".o")

	cmd := exec.CommandContext(ctx, d.Scanner, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return ScanResult{}, &errs.ScanError{Source: src, Err: fmt.Errorf("%w: %s", err, stderr.String())}
	}
	res, err := parseP1689(stdout.Bytes())
	if err != nil {
		return ScanResult{}, &errs.ScanError{Source: src, Err: err}
	}
	return res, nil
}

func (d *NativeDriver) ScanIncludes(ctx context.Context, src string, extraOpts []string) ([]string, error) {
	args := append([]string{}, extraOpts...)
	args = append(args, "-M", "-MG", src)

	cmd := exec.CommandContext(ctx, d.compilerFor(src), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &errs.ScanError{Source: src, Err: fmt.Errorf("%w: %s", err, stderr.String())}
	}
	return parseMakeDepfile(stdout.String(), src), nil
}

// parseMakeDepfile extracts header paths from a `cc -M` style depfile,
// skipping the rule's own target and the source file itself.
func parseMakeDepfile(out, src string) []string {
	out = strings.ReplaceAll(out, "\\\n", " ")
	colon := strings.IndexByte(out, ':')
	if colon < 0 {
		return nil
	}
	fields := strings.Fields(out[colon+1:])

	var headers []string
	for _, f := range fields {
		if f == src {
			continue
		}
		headers = append(headers, f)
	}
	return headers
}

func (d *NativeDriver) CompileBMI(ctx context.Context, src, out string, moduleMap map[string]string, extraOpts []string) (Record, error) {
	if err := ensureParentDir(out); err != nil {
		return Record{}, err
	}
	args := append([]string{"-std=c++20"}, extraOpts...)
	args = append(args, moduleMapFlags(moduleMap)...)
	args = append(args, "--precompile", "-x", "c++-module", src, "-o", out)
	return runCaptured(ctx, d.compilerFor(src), args...)
}

func (d *NativeDriver) CompileObject(ctx context.Context, src, out string, debug bool, moduleMap map[string]string, extraOpts []string) (Record, error) {
	if err := ensureParentDir(out); err != nil {
		return Record{}, err
	}
	compiler := d.compilerFor(src)
	if strings.HasSuffix(src, ".pcm") {
		compiler = d.CXX
	}

	args := append([]string{}, extraOpts...)
	if debug {
		args = append(args, "-g")
	}
	args = append(args, moduleMapFlags(moduleMap)...)
	args = append(args, "-c", src, "-o", out)
	return runCaptured(ctx, compiler, args...)
}

func (d *NativeDriver) Archive(ctx context.Context, objs []string, out string) (Record, error) {
	if err := ensureParentDir(out); err != nil {
		return Record{}, err
	}
	args := append([]string{"rcs", out}, objs...)
	return runCaptured(ctx, "ar", args...)
}

func (d *NativeDriver) Link(ctx context.Context, objs []string, out string, debug bool, extraOpts []string) (Record, error) {
	if err := ensureParentDir(out); err != nil {
		return Record{}, err
	}
	linker := d.CXX
	if linker == "" {
		linker = d.CC
	}

	args := []string{}
	if debug {
		args = append(args, "-g")
	}
	args = append(args, "-o", out)
	args = append(args, objs...)
	args = append(args, extraOpts...)
	return runCaptured(ctx, linker, args...)
}

func (d *NativeDriver) SharedLink(ctx context.Context, objs []string, out string, extraOpts []string) (Record, error) {
	if err := ensureParentDir(out); err != nil {
		return Record{}, err
	}
	linker := d.CXX
	if linker == "" {
		linker = d.CC
	}

	args := []string{"-shared", "-o", out}
	switch runtime.GOOS {
	case "darwin":
		args = append(args, "-Wl,-all_load")
	case "linux":
		args = append(args, "-Wl,--whole-archive")
	}
	args = append(args, objs...)
	args = append(args, extraOpts...)
	return runCaptured(ctx, linker, args...)
}
