// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"fmt"
	"sort"
	"strings"
)

// Entry describes one archive member, as returned by List and Find
// (spec §6.2).
type Entry struct {
	Name           string
	Size           uint64
	CompressedSize uint64
	Flags          uint32
	Locale         uint16
	Platform       uint16
}

// archiveEntry is Entry plus the bookkeeping List/Find don't expose:
// the block index it resolves to, and whether Name is a real stored
// path or a synthetic placeholder. OpenForModify, Compare, and Rebuild
// all need to read a member back by block index when its real name
// isn't known.
type archiveEntry struct {
	Entry
	blockIndex int
	synthetic  bool
}

// syntheticFileName is the placeholder assigned to a live block-table
// slot that no known name resolves to (spec §3: "unknown names
// replaced by synthetic File########.ext"), following the
// "File########.xxx" convention common MPQ tooling uses for members
// whose real name was never recovered.
func syntheticFileName(blockIndex int) string {
	return fmt.Sprintf("File%08d.xxx", blockIndex)
}

// enumerate lists every live block-table entry: ones named in
// (listfile), when present, resolved through the hash table for their
// size/flags/locale/platform, plus a synthetic entry for any slot the
// listfile doesn't cover — including when (listfile) is absent
// entirely (spec §3, §7 "Accept absent (listfile)").
func (a *Archive) enumerate() []archiveEntry {
	claimed := make(map[int]bool)
	var out []archiveEntry

	claim := func(name string) (archiveEntry, bool) {
		he, ok := a.ht.findEntry(normalizePath(name), localeNeutral)
		if !ok {
			return archiveEntry{}, false
		}
		idx := int(he.BlockIndex)
		if idx < 0 || idx >= len(a.bt.entries) {
			return archiveEntry{}, false
		}
		e := a.bt.entries[idx]
		if e.Flags&fileExists == 0 {
			return archiveEntry{}, false
		}
		claimed[idx] = true
		return archiveEntry{
			Entry: Entry{
				Name:           name,
				Size:           uint64(e.FileSize),
				CompressedSize: uint64(e.CompressedSize),
				Flags:          e.Flags,
				Locale:         he.Locale,
				Platform:       he.Platform,
			},
			blockIndex: idx,
		}, true
	}

	// Reserved internal names are never listed inside (listfile) itself
	// but are still addressable by their fixed name; claim their slots
	// first so they never fall through to a synthetic name.
	for _, reserved := range []string{"(listfile)", "(attributes)", "(signature)"} {
		claim(reserved)
	}

	if data, err := a.Read("(listfile)"); err == nil {
		content := strings.ReplaceAll(string(data), "\r\n", "\n")
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if e, ok := claim(line); ok {
				out = append(out, e)
			}
		}
	}

	for idx, bte := range a.bt.entries {
		if claimed[idx] || bte.Flags&fileExists == 0 {
			continue
		}
		out = append(out, archiveEntry{
			Entry: Entry{
				Name:           syntheticFileName(idx),
				Size:           uint64(bte.FileSize),
				CompressedSize: uint64(bte.CompressedSize),
				Flags:          bte.Flags,
			},
			blockIndex: idx,
			synthetic:  true,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// List returns every enumerable member (spec §6.2), tolerating an
// absent (listfile) by falling back to block-table enumeration with
// synthetic names instead of erroring.
func (a *Archive) List() ([]Entry, error) {
	raw := a.enumerate()
	entries := make([]Entry, len(raw))
	for i, e := range raw {
		entries[i] = e.Entry
	}
	return entries, nil
}

// Find resolves path to a single Entry, optionally filtered to an
// exact locale and/or platform (spec §6.2). A nil locale applies the
// same locale-0 fallback Read uses; a nil platform accepts any.
func (a *Archive) Find(path string, locale, platform *uint16) (Entry, bool) {
	path = normalizePath(path)
	loc := uint16(localeNeutral)
	if locale != nil {
		loc = *locale
	}

	if he, ok := a.ht.findEntry(path, loc); ok {
		idx := int(he.BlockIndex)
		if idx >= 0 && idx < len(a.bt.entries) {
			e := a.bt.entries[idx]
			if e.Flags&fileExists != 0 && (platform == nil || he.Platform == *platform) {
				return Entry{
					Name:           path,
					Size:           uint64(e.FileSize),
					CompressedSize: uint64(e.CompressedSize),
					Flags:          e.Flags,
					Locale:         he.Locale,
					Platform:       he.Platform,
				}, true
			}
		}
	}

	if a.het != nil && a.bet != nil {
		if idx, ok := hetLookup(a.het, a.bet, path); ok {
			flags := a.bet.flags[a.bet.flagIndex[idx]]
			if flags&fileExists != 0 {
				return Entry{
					Name:           path,
					Size:           a.bet.fileSize[idx],
					CompressedSize: a.bet.compressedSize[idx],
					Flags:          flags,
				}, true
			}
		}
	}

	return Entry{}, false
}

// readBlockIndex reads block index idx's logical content directly,
// bypassing name-based hash resolution. Used for slots no known path
// resolves to. A file encrypted with a name-derived key cannot be
// decrypted without that name; it is read here with a key derived from
// the empty name, so the result is a sector-table or codec error, or
// garbage content, rather than the file.
func (a *Archive) readBlockIndex(idx int) ([]byte, error) {
	if idx < 0 || idx >= len(a.bt.entries) {
		return nil, wrapf(ErrFileNotFound, "block index %d", idx)
	}
	e := a.bt.entries[idx]
	if e.Flags&fileDeleteMarker != 0 {
		return nil, wrapf(ErrFileNotFound, "block index %d (deletion marker)", idx)
	}

	hi := uint16(0)
	if a.bt.hiOffset != nil {
		hi = a.bt.hiOffset[idx]
	}

	h, err := a.handles.clone()
	if err != nil {
		return nil, err
	}
	defer h.Close()

	return readFileBlock(h, "", a.header.ArchiveOffset, e, hi, a.sectorSize)
}

// readEntry reads e's content through whichever path is valid for it:
// by name when one is known, by raw block index otherwise.
func (a *Archive) readEntry(e archiveEntry) ([]byte, error) {
	if e.synthetic {
		return a.readBlockIndex(e.blockIndex)
	}
	return a.Read(e.Name)
}
