// Package plugin loads a user-supplied build script shared library and
// invokes its exported "build" symbol (spec §6's loadable build-script
// ABI): an external collaborator the core hands a host context to and
// gets an exit status back. No cgo: the library is opened and its
// symbol resolved with ebitengine/purego, the same no-cgo FFI mechanism
// the retrieval pack's container tooling pulls in for loading native
// runtime shims.
//
// purego does not support passing C structs by value across the
// boundary portably, so ProjectContext never crosses the ABI as a
// struct. Instead the plugin receives a flat parameter list: an opaque
// int32 host handle plus a small table of host callback pointers the
// native side uses to query everything ProjectContext would otherwise
// carry (name, compiler, argv, and package exports). The handle, not a
// Go pointer, is what travels into C, so nothing Go's GC owns is ever
// handed across the boundary unpinned.
package plugin

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/google/uuid"

	"github.com/modbuild/modbuild/internal/target"
)

// ExportFactory lazily builds the Export for one package name; spec
// §6's ProjectContext.packageExports is a map of these, not of already
// -built Exports, so a build script that never asks for a package never
// pays to build it.
type ExportFactory func() (target.Export, error)

// ProjectContext is the host-side view spec §6 names. It never crosses
// the ABI boundary directly; Invoke flattens it into the handle +
// callback-pointer calling convention below.
type ProjectContext struct {
	Name           string
	PackageExports map[string]ExportFactory
	Compiler       string
	Argv           []string
}

type hostEntry struct {
	ctx        *ProjectContext
	exports    map[int32]target.Export
	nextExport int32
	cstrings   [][]byte // kept alive for the duration of one Invoke call
}

var (
	registryMu sync.Mutex
	registry   = make(map[int32]*hostEntry)
	nextHandle int32
)

func register(ctx *ProjectContext) int32 {
	registryMu.Lock()
	defer registryMu.Unlock()
	nextHandle++
	h := nextHandle
	registry[h] = &hostEntry{ctx: ctx, exports: make(map[int32]target.Export)}
	return h
}

func unregister(h int32) {
	registryMu.Lock()
	delete(registry, h)
	registryMu.Unlock()
}

func lookup(h int32) *hostEntry {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[h]
}

// cString allocates a NUL-terminated copy of s on the entry's arena
// (kept alive until Invoke returns) and returns it as a uintptr the
// native side may read, but never free.
func (e *hostEntry) cString(s string) uintptr {
	buf := append([]byte(s), 0)
	e.cstrings = append(e.cstrings, buf)
	return uintptr(unsafe.Pointer(&buf[0]))
}

func goString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	var buf []byte
	for p := ptr; ; p++ {
		b := *(*byte)(unsafe.Pointer(p))
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

// Script is a loaded build-script shared library bound to its "build"
// (or manifest-declared) entry point.
type Script struct {
	handle uintptr
	build  func(hostHandle int32, argc int32, argv uintptr, hostCB uintptr) int32
}

// StageForLoad copies the build script's shared library to a
// fresh, uuid-named path under the OS temp directory before it is
// dlopen'd. The dynamic loader on every platform this targets caches a
// mapping by inode/path; rebuilding the same package in the same
// process (as the test driver and any long-lived CLI invocation both
// do across packages sharing a build script name) would otherwise risk
// handing back a stale symbol table for a path the loader has already
// seen. A fresh path per invocation sidesteps that without needing
// dlclose ordering guarantees purego doesn't make.
func StageForLoad(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("staging build script %s: %w", path, err)
	}
	defer src.Close()

	staged := filepath.Join(os.TempDir(), "modbuild-plugins", uuid.NewString()+filepath.Ext(path))
	if err := os.MkdirAll(filepath.Dir(staged), 0o755); err != nil {
		return "", fmt.Errorf("staging build script %s: %w", path, err)
	}

	dst, err := os.OpenFile(staged, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return "", fmt.Errorf("staging build script %s: %w", path, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("staging build script %s: %w", path, err)
	}
	return staged, nil
}

// Load opens path and resolves symbol (the plugin manifest's Symbol
// field, "build" by default) via dlopen/dlsym, binding it through
// purego.RegisterLibFunc rather than cgo.
func Load(path, symbol string) (*Script, error) {
	if symbol == "" {
		symbol = "build"
	}
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("loading build script %s: %w", path, err)
	}

	s := &Script{handle: h}
	purego.RegisterLibFunc(&s.build, h, symbol)
	return s, nil
}

// hostCallbacks is the fixed set of accessor functions a loaded script
// is handed in place of a by-value ProjectContext: one host handle plus
// these six scalar-in/scalar-out functions reconstruct everything
// spec §6 lists on ProjectContext.
type hostCallbacks struct {
	name          uintptr
	compiler      uintptr
	lookupExport  uintptr
	exportCompile uintptr
	exportLink    uintptr
	exportFindBMI uintptr
}

// Invoke registers ctx under a fresh handle, calls the script's entry
// point, and tears the registration down before returning — matching
// spec §6's "the core invokes this symbol after compiling the script"
// and nothing about the context's lifetime surviving the call.
func (s *Script) Invoke(ctx *ProjectContext) (int, error) {
	h := register(ctx)
	defer unregister(h)

	cb := hostCallbacks{
		name:          purego.NewCallback(hostName),
		compiler:      purego.NewCallback(hostCompiler),
		lookupExport:  purego.NewCallback(hostLookupExport),
		exportCompile: purego.NewCallback(hostExportCompileOption),
		exportLink:    purego.NewCallback(hostExportLinkOption),
		exportFindBMI: purego.NewCallback(hostExportFindBMI),
	}

	argv := buildArgv(lookup(h), ctx.Argv)
	status := s.build(h, int32(len(ctx.Argv)), argv, uintptr(unsafe.Pointer(&cb)))
	return int(status), nil
}

// buildArgv lays out ctx.Argv as a char* array of NUL-terminated strings,
// followed by a null entry, on the entry's arena, mirroring argv/argc the
// way a process's own main receives them.
func buildArgv(e *hostEntry, args []string) uintptr {
	if len(args) == 0 {
		return 0
	}
	ptrs := make([]uintptr, len(args)+1) // last entry stays 0, like argv[argc]
	for i, a := range args {
		ptrs[i] = e.cString(a)
	}
	e.cstrings = append(e.cstrings, unsafe.Slice((*byte)(unsafe.Pointer(&ptrs[0])), len(ptrs)*int(unsafe.Sizeof(uintptr(0)))))
	return uintptr(unsafe.Pointer(&ptrs[0]))
}

//
// host callbacks — all purego.NewCallback targets, so every parameter
// and return value must be a single machine word.
//

func hostName(handle int32) uintptr {
	e := lookup(handle)
	if e == nil {
		return 0
	}
	return e.cString(e.ctx.Name)
}

func hostCompiler(handle int32) uintptr {
	e := lookup(handle)
	if e == nil {
		return 0
	}
	return e.cString(e.ctx.Compiler)
}

// hostLookupExport resolves name against the host's packageExports,
// calling its ExportFactory on every lookup (results are not reused
// across lookups), and returns a new opaque export id the other
// callbacks take — 0 means not found or failed to build.
func hostLookupExport(handle int32, namePtr uintptr) int32 {
	e := lookup(handle)
	if e == nil {
		return 0
	}
	name := goString(namePtr)
	factory, ok := e.ctx.PackageExports[name]
	if !ok {
		return 0
	}
	x, err := factory()
	if err != nil {
		return 0
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	e.nextExport++
	id := e.nextExport
	e.exports[id] = x
	return id
}

func hostExportCompileOption(handle int32, exportID int32) uintptr {
	e, x := lookupExport(handle, exportID)
	if x == nil {
		return 0
	}
	return e.cString(joinFlags(x.CompileOptionFragment()))
}

func hostExportLinkOption(handle int32, exportID int32) uintptr {
	e, x := lookupExport(handle, exportID)
	if x == nil {
		return 0
	}
	return e.cString(joinFlags(x.LinkOptionFragment()))
}

func hostExportFindBMI(handle int32, exportID int32, namePtr uintptr) uintptr {
	e, x := lookupExport(handle, exportID)
	if x == nil {
		return 0
	}
	mt, ok := x.FindBMI(goString(namePtr))
	if !ok {
		return 0
	}
	return e.cString(mt.ModuleName())
}

func lookupExport(handle, exportID int32) (*hostEntry, target.Export) {
	registryMu.Lock()
	defer registryMu.Unlock()
	e, ok := registry[handle]
	if !ok {
		return nil, nil
	}
	return e, e.exports[exportID]
}

func joinFlags(flags []string) string {
	out := ""
	for i, f := range flags {
		if i > 0 {
			out += " "
		}
		out += f
	}
	return out
}
