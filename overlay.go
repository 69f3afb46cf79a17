// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"sort"
	"strings"
)

// layer pairs an opened Archive with its explicit priority. Higher
// priority wins on lookup; among layers of equal priority the one
// added first wins, since the stack is re-sorted with a stable sort.
type layer struct {
	archive  *Archive
	priority int32
	path     string
}

// Overlay resolves a path across a prioritized stack of archives,
// honoring deletion markers in higher-priority layers (a DELETE_MARKER
// entry masks the same path in every lower-priority layer without
// requiring that layer to be rewritten).
type Overlay struct {
	layers []layer
}

// NewOverlay constructs an empty Overlay.
func NewOverlay() *Overlay {
	return &Overlay{}
}

// Add opens path and stacks it into the overlay at the given priority.
// Closing the Overlay closes every archive it opened this way.
func (o *Overlay) Add(path string, priority int32) error {
	a, err := Open(path)
	if err != nil {
		return err
	}
	o.layers = append(o.layers, layer{archive: a, priority: priority, path: path})
	o.resort()
	return nil
}

// AddArchive stacks an already-open Archive without taking ownership
// of closing it.
func (o *Overlay) AddArchive(a *Archive, priority int32) {
	o.layers = append(o.layers, layer{archive: a, priority: priority})
	o.resort()
}

// Remove unstacks every layer backed by path.
func (o *Overlay) Remove(path string) error {
	kept := o.layers[:0]
	var firstErr error
	for _, l := range o.layers {
		if l.path == path {
			if l.path != "" {
				if err := l.archive.Close(); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			continue
		}
		kept = append(kept, l)
	}
	o.layers = kept
	return firstErr
}

func (o *Overlay) resort() {
	sort.SliceStable(o.layers, func(i, j int) bool {
		return o.layers[i].priority > o.layers[j].priority
	})
}

// hasFileLinear walks layers in priority order (highest first),
// returning the first layer that names path at all — present or as a
// deletion marker. This is the shared core HasFile, ArchiveOf and Read
// build on; a deletion marker in a high-priority layer must still stop
// the walk even though it reports "not found" to the caller.
func (o *Overlay) hasFileLinear(mpqPath string) (*Archive, bool, bool) {
	for _, l := range o.layers {
		e, _, ok := l.archive.resolve(mpqPath, localeNeutral)
		if !ok {
			continue
		}
		return l.archive, true, e.Flags&fileDeleteMarker != 0
	}
	return nil, false, false
}

// HasFile reports whether mpqPath resolves to a live entry anywhere in
// the stack, respecting deletion markers.
func (o *Overlay) HasFile(mpqPath string) bool {
	_, found, deleted := o.hasFileLinear(normalizePath(mpqPath))
	return found && !deleted
}

// ArchiveOf returns the highest-priority archive that would answer a
// Read for mpqPath, or nil if none does (including when masked by a
// deletion marker).
func (o *Overlay) ArchiveOf(mpqPath string) *Archive {
	a, found, deleted := o.hasFileLinear(normalizePath(mpqPath))
	if !found || deleted {
		return nil
	}
	return a
}

// Read extracts mpqPath from the highest-priority layer that has it.
func (o *Overlay) Read(mpqPath string) ([]byte, error) {
	norm := normalizePath(mpqPath)
	a, found, deleted := o.hasFileLinear(norm)
	if !found {
		return nil, wrapf(ErrFileNotFound, "%s", mpqPath)
	}
	if deleted {
		return nil, wrapf(ErrFileNotFound, "%s (deleted by higher-priority layer)", mpqPath)
	}
	return a.Read(norm)
}

// List returns the union of every layer's members (falling back to
// synthetic names per Archive.List when a layer has no (listfile)),
// highest priority wins on case-insensitive duplicates, with deletion
// markers removing a path from the result even if a lower-priority
// layer still has it.
func (o *Overlay) List() ([]string, error) {
	seen := make(map[string]bool)
	deleted := make(map[string]bool)
	var out []string

	for _, l := range o.layers {
		entries, err := l.archive.List()
		if err != nil {
			continue
		}
		for _, e := range entries {
			key := strings.ToLower(normalizePath(e.Name))
			if seen[key] || deleted[key] {
				continue
			}
			if e.Flags&fileDeleteMarker != 0 {
				deleted[key] = true
				continue
			}
			seen[key] = true
			out = append(out, e.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close closes every archive this Overlay opened via Add.
func (o *Overlay) Close() error {
	var firstErr error
	for _, l := range o.layers {
		if l.path == "" {
			continue // caller-owned, via AddArchive
		}
		if err := l.archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
