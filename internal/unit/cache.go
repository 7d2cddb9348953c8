package unit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/modbuild/modbuild/internal/compiler"
)

// Cache persists per-source Units as JSON sidecars under cacheDir, keyed
// by the source path relative to baseDir (normally the package
// directory). Two packages with a source at the same relative path map
// to the same sidecar name, so each package needs its own cacheDir.
type Cache struct {
	baseDir  string
	cacheDir string
	driver   compiler.Driver

	mu   sync.Mutex
	memo map[string]Unit
}

func NewCache(baseDir, cacheDir string, driver compiler.Driver) *Cache {
	return &Cache{
		baseDir:  baseDir,
		cacheDir: cacheDir,
		driver:   driver,
		memo:     make(map[string]Unit),
	}
}

// sidecarPath computes cache/units/relative(S)+".json"; sources outside
// baseDir (e.g. generated files under outputRoot) fall back to a
// sanitized absolute path so they never collide with in-tree units.
func (c *Cache) sidecarPath(src string) string {
	rel, err := filepath.Rel(c.baseDir, src)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = strings.ReplaceAll(strings.TrimLeft(filepath.ToSlash(src), "/"), "/", "_")
	}
	return filepath.Join(c.cacheDir, "units", filepath.FromSlash(rel)+".json")
}

// Get returns the Unit for src, from the in-memory memo, the on-disk
// sidecar (if still fresh relative to src and optionsFingerprint), or by
// invoking the driver's scanner — in that preference order. extraOpts is
// whatever compile-option fragment affects scanning (include paths,
// defines, language mode); it is the caller's responsibility to fold
// every such flag into optionsFingerprint, per spec §4.4's invariant.
func (c *Cache) Get(ctx context.Context, src string, extraOpts []string, optionsFingerprint string) (Unit, error) {
	c.mu.Lock()
	if u, ok := c.memo[src]; ok {
		c.mu.Unlock()
		return u, nil
	}
	c.mu.Unlock()

	sidecar := c.sidecarPath(src)
	if u, ok := c.loadFresh(sidecar, src, optionsFingerprint); ok {
		c.store(src, u)
		return u, nil
	}

	u, err := c.scan(ctx, src, extraOpts)
	if err != nil {
		return Unit{}, err
	}
	if err := c.persist(sidecar, u); err != nil {
		return Unit{}, fmt.Errorf("failed to write unit cache for %s: %w", src, err)
	}
	c.store(src, u)
	return u, nil
}

func (c *Cache) store(src string, u Unit) {
	c.mu.Lock()
	c.memo[src] = u
	c.mu.Unlock()
}

func (c *Cache) loadFresh(sidecar, src, optionsFingerprint string) (Unit, bool) {
	sidecarInfo, err := os.Stat(sidecar)
	if err != nil {
		return Unit{}, false
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return Unit{}, false
	}
	newest := srcInfo.ModTime()

	if optionsFingerprint != "" {
		if fpInfo, err := os.Stat(optionsFingerprint); err == nil && fpInfo.ModTime().After(newest) {
			newest = fpInfo.ModTime()
		}
	}

	if !sidecarInfo.ModTime().After(newest) {
		return Unit{}, false
	}

	data, err := os.ReadFile(sidecar)
	if err != nil {
		return Unit{}, false
	}
	var u Unit
	if err := json.Unmarshal(data, &u); err != nil {
		return Unit{}, false
	}
	return u, true
}

func (c *Cache) scan(ctx context.Context, src string, extraOpts []string) (Unit, error) {
	modResult, err := c.driver.ScanModule(ctx, src, extraOpts)
	if err != nil {
		return Unit{}, err
	}
	includes, err := c.driver.ScanIncludes(ctx, src, extraOpts)
	if err != nil {
		return Unit{}, err
	}

	return Unit{
		Input:       src,
		Exported:    modResult.Exported,
		ModuleName:  modResult.Name,
		IncludeDeps: includes,
		ModuleDeps:  modResult.Deps,
	}, nil
}

func (c *Cache) persist(sidecar string, u Unit) error {
	if err := os.MkdirAll(filepath.Dir(sidecar), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sidecar, data, 0o644)
}
