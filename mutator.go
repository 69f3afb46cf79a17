// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import "os"

// Mutator holds an archive open for exclusive modification. Like the
// teacher's OpenForModify, it works by decoding every live file into
// memory, applying the staged edits, and rewriting the whole container
// through a Builder — simpler and safer than in-place patching, at the
// cost of a full rewrite per Save. Re-deriving every entry's flags and
// keys from scratch is what keeps the result wire-compatible with a
// freshly built archive.
type Mutator struct {
	path    string
	archive *Archive
	files   map[string][]byte // mpqPath -> content, nil means deleted
	order   []string          // preserves original + insertion order
	builder *Builder
}

// OpenForModify opens path exclusively for add/remove/rename.
func OpenForModify(path string) (*Mutator, error) {
	a, err := Open(path)
	if err != nil {
		return nil, err
	}

	m := &Mutator{
		path:    path,
		archive: a,
		files:   make(map[string][]byte),
		builder: NewBuilder(WithVersion(a.header.version()), WithSectorSizeShift(a.header.SectorSizeShift)),
	}

	// enumerate covers every live block-table slot, not just ones named
	// in (listfile); an absent listfile must not drop files on Save.
	for _, re := range a.enumerate() {
		if re.Flags&fileDeleteMarker != 0 {
			continue
		}
		data, err := a.readEntry(re)
		if err != nil {
			continue
		}
		key := normalizePath(re.Name)
		m.files[key] = data
		m.order = append(m.order, key)
	}

	return m, nil
}

// AddFile stages path with the given content, overwriting any existing
// entry of the same name.
func (m *Mutator) AddFile(mpqPath string, data []byte) {
	key := normalizePath(mpqPath)
	if _, exists := m.files[key]; !exists {
		m.order = append(m.order, key)
	}
	m.files[key] = data
}

// RemoveFile stages path for removal. A deletion marker is written for
// it on Save so lower-priority archives in an Overlay stay masked.
func (m *Mutator) RemoveFile(mpqPath string) {
	key := normalizePath(mpqPath)
	if _, exists := m.files[key]; !exists {
		m.order = append(m.order, key)
	}
	m.files[key] = nil
}

// RenameFile stages a rename: the new name gets the old content, the
// old name gets a deletion marker.
func (m *Mutator) RenameFile(oldPath, newPath string) error {
	oldKey := normalizePath(oldPath)
	data, ok := m.files[oldKey]
	if !ok || data == nil {
		return wrapf(ErrFileNotFound, "%s", oldPath)
	}
	m.RemoveFile(oldPath)
	m.AddFile(newPath, data)
	return nil
}

// Save rewrites the archive to a temporary file and atomically
// replaces the original, matching the teacher's OpenForModify commit
// shape.
func (m *Mutator) Save() error {
	for _, key := range m.order {
		data := m.files[key]
		if data == nil {
			m.builder.Delete(key)
		} else {
			m.builder.Add(key, data)
		}
	}

	tmpPath := m.path + ".tmp"
	if err := m.builder.Build(tmpPath); err != nil {
		os.Remove(tmpPath)
		return wrapf(err, "rebuild %s", m.path)
	}
	if err := m.archive.Close(); err != nil {
		os.Remove(tmpPath)
		return wrapf(err, "close original archive")
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return wrapf(err, "replace %s", m.path)
	}
	return nil
}

// Close discards any staged edits and releases the underlying handle.
func (m *Mutator) Close() error {
	return m.archive.Close()
}
