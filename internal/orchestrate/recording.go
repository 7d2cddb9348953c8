package orchestrate

import (
	"context"
	"os"

	"github.com/modbuild/modbuild/internal/compiler"
)

// recordingDriver wraps a compiler.Driver to append one compile_commands.json
// entry per BMI/object action actually scheduled this invocation — never
// for actions the staleness oracle skipped, per the compilation-database
// feature's "only what this invocation touched" rule.
type recordingDriver struct {
	inner   compiler.Driver
	db      *commandDB
	enabled bool
	wd      string
}

func newRecordingDriver(inner compiler.Driver, db *commandDB, enabled bool) compiler.Driver {
	wd, _ := os.Getwd()
	return &recordingDriver{inner: inner, db: db, enabled: enabled, wd: wd}
}

func (r *recordingDriver) ScanModule(ctx context.Context, src string, extraOpts []string) (compiler.ScanResult, error) {
	return r.inner.ScanModule(ctx, src, extraOpts)
}

func (r *recordingDriver) ScanIncludes(ctx context.Context, src string, extraOpts []string) ([]string, error) {
	return r.inner.ScanIncludes(ctx, src, extraOpts)
}

func (r *recordingDriver) CompileBMI(ctx context.Context, src, out string, moduleMap map[string]string, extraOpts []string) (compiler.Record, error) {
	rec, err := r.inner.CompileBMI(ctx, src, out, moduleMap, extraOpts)
	r.record(src, out, rec)
	return rec, err
}

func (r *recordingDriver) CompileObject(ctx context.Context, src, out string, debug bool, moduleMap map[string]string, extraOpts []string) (compiler.Record, error) {
	rec, err := r.inner.CompileObject(ctx, src, out, debug, moduleMap, extraOpts)
	r.record(src, out, rec)
	return rec, err
}

func (r *recordingDriver) Archive(ctx context.Context, objs []string, out string) (compiler.Record, error) {
	return r.inner.Archive(ctx, objs, out)
}

func (r *recordingDriver) Link(ctx context.Context, objs []string, out string, debug bool, extraOpts []string) (compiler.Record, error) {
	return r.inner.Link(ctx, objs, out, debug, extraOpts)
}

func (r *recordingDriver) SharedLink(ctx context.Context, objs []string, out string, extraOpts []string) (compiler.Record, error) {
	return r.inner.SharedLink(ctx, objs, out, extraOpts)
}

func (r *recordingDriver) record(src, out string, rec compiler.Record) {
	if !r.enabled {
		return
	}
	r.db.entries = append(r.db.entries, compileCommand{
		Directory: r.wd,
		Command:   rec.Command,
		File:      src,
		Output:    out,
	})
}
