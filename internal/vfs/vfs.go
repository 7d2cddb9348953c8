// Package vfs implements the staleness oracle (spec component B): a
// process-local set of "planned outputs" that lets downstream staleness
// checks treat yet-to-be-produced files as infinitely fresh within the
// same build invocation.
package vfs

import (
	"os"
	"sync"
	"time"

	"github.com/modbuild/modbuild/internal/errs"
)

// farFuture stands in for "+∞" when comparing mtimes: a planned output
// is always newer than anything that could depend on it.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// VFS tracks outputs planned during a single build invocation. A child
// VFS (see Child) inherits its parent's planned set for lookups and, on
// Merge, folds its own additions back into the parent.
type VFS struct {
	mu     sync.Mutex
	own    map[string]struct{}
	parent *VFS
}

// New creates a root VFS with no planned outputs.
func New() *VFS {
	return &VFS{own: make(map[string]struct{})}
}

// Child returns a scoped VFS that sees everything the parent has planned
// but records its own additions separately until Merge is called.
func (v *VFS) Child() *VFS {
	return &VFS{own: make(map[string]struct{}), parent: v}
}

// Merge folds this VFS's own planned set into its parent's, then clears
// it. A no-op on a root VFS (no parent).
func (v *VFS) Merge() {
	if v.parent == nil {
		return
	}
	v.mu.Lock()
	own := v.own
	v.own = make(map[string]struct{})
	v.mu.Unlock()

	v.parent.mu.Lock()
	for p := range own {
		v.parent.own[p] = struct{}{}
	}
	v.parent.mu.Unlock()
}

// AddFile records that path P will be produced by an action scheduled
// during this build.
func (v *VFS) AddFile(p string) {
	v.mu.Lock()
	v.own[p] = struct{}{}
	v.mu.Unlock()
}

// planned reports whether p is in this VFS's own set or any ancestor's.
func (v *VFS) planned(p string) bool {
	for n := v; n != nil; n = n.parent {
		n.mu.Lock()
		_, ok := n.own[p]
		n.mu.Unlock()
		if ok {
			return true
		}
	}
	return false
}

// Exists reports whether p is planned this invocation or already present
// on disk.
func (v *VFS) Exists(p string) bool {
	if v.planned(p) {
		return true
	}
	_, err := os.Stat(p)
	return err == nil
}

// MTime returns farFuture for a planned-but-not-yet-produced output, or
// the on-disk mtime otherwise.
func (v *VFS) MTime(p string) (time.Time, error) {
	if v.planned(p) {
		return farFuture, nil
	}
	info, err := os.Stat(p)
	if err != nil {
		return time.Time{}, &errs.FileNotFound{Path: p}
	}
	return info.ModTime(), nil
}

// NeedsUpdate reports whether out is missing or older than any of deps.
// A missing dep that is neither planned nor on disk raises FileNotFound.
func (v *VFS) NeedsUpdate(out string, deps []string) (bool, error) {
	if !v.Exists(out) {
		return true, nil
	}
	outTime, err := v.MTime(out)
	if err != nil {
		return false, err
	}
	for _, dep := range deps {
		depTime, err := v.MTime(dep)
		if err != nil {
			return false, err
		}
		if depTime.After(outTime) {
			return true, nil
		}
	}
	return false, nil
}
