// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"os"

	"golang.org/x/sync/errgroup"
)

// pendingFile is a file staged for inclusion in the next Build call.
type pendingFile struct {
	mpqPath        string
	data           []byte
	isDeleteMarker bool
	isPatchFile    bool
	sectorCRC      bool
	locale         uint16
}

// compiledFile is a pendingFile after sector compression, ready to be
// laid out sequentially in archive-byte order. Compilation is the
// parallel stage; layout is strictly sequential (offsets depend on
// write order).
type compiledFile struct {
	mpqPath        string
	data           []byte // on-disk bytes, already compressed/encrypted as needed
	flags          uint32
	fileSize       uint32
	isDeleteMarker bool
}

// Builder assembles a brand-new MPQ archive in one shot (spec §4.7).
// Unlike Archive, a Builder has no notion of an already-open container;
// Build writes the whole thing in a single pass.
type Builder struct {
	cfg     builderConfig
	pending []pendingFile
	dedup   *dedupCache
}

// NewBuilder constructs a Builder with the given options applied over
// sane defaults (V1, zlib, listfile+attributes on, dedup on).
func NewBuilder(opts ...BuilderOption) *Builder {
	cfg := defaultBuilderConfig()
	for _, o := range opts {
		o(&cfg)
	}
	b := &Builder{cfg: cfg}
	if cfg.dedup {
		b.dedup = newDedupCache()
	}
	return b
}

// Add stages a file for inclusion.
func (b *Builder) Add(mpqPath string, data []byte) {
	b.pending = append(b.pending, pendingFile{mpqPath: normalizePath(mpqPath), data: data})
}

// AddWithSectorCRC stages a file with per-sector Adler-32 checksums enabled.
func (b *Builder) AddWithSectorCRC(mpqPath string, data []byte) {
	b.pending = append(b.pending, pendingFile{mpqPath: normalizePath(mpqPath), data: data, sectorCRC: true})
}

// AddPatchFile stages a file flagged PATCH_FILE, for use as an overlay
// layer member (spec §4.9). Its content is still stored verbatim;
// Archive.Read refuses to decode it directly, matching the read side.
func (b *Builder) AddPatchFile(mpqPath string, data []byte) {
	b.pending = append(b.pending, pendingFile{mpqPath: normalizePath(mpqPath), data: data, isPatchFile: true})
}

// Delete stages a deletion marker: an entry with EXISTS|DELETE_MARKER
// and no data, masking a lower-priority archive's copy of mpqPath in
// an Overlay.
func (b *Builder) Delete(mpqPath string) {
	b.pending = append(b.pending, pendingFile{mpqPath: normalizePath(mpqPath), isDeleteMarker: true})
}

// Build compiles and writes the archive to path.
func (b *Builder) Build(path string) error {
	sectorSize := uint32(512) << b.cfg.sectorSizeShift

	compiled, err := b.compile(sectorSize)
	if err != nil {
		return err
	}

	specialCount := 0
	if b.cfg.withListfile {
		specialCount++
	}
	if b.cfg.withAttributes {
		specialCount++
	}
	if b.cfg.weakSigningKey != nil {
		specialCount++
	}
	slotCount := len(compiled) + specialCount

	hashSize := nextPow2(uint32(slotCount)*2 + 4)
	ht := newEmptyHashTable(hashSize)
	bt := &blockTable{}
	attrs := newAttributesTable(0)
	if b.cfg.withAttributes {
		attrs = newAttributesTable(slotCount)
	}

	f, err := os.Create(path)
	if err != nil {
		return wrapf(err, "create %s", path)
	}
	defer f.Close()

	headerSize := headerSizeForVersion(b.cfg.version)
	if _, err := f.Seek(int64(headerSize), 0); err != nil {
		return wrapf(err, "seek past header")
	}

	needsHi := false
	attrIdx := 0
	var entryPaths []string

	writeEntry := func(mpqPath string, data, content []byte, flags, fileSize uint32) error {
		pos, err := f.Seek(0, 1)
		if err != nil {
			return err
		}
		if uint64(pos) > 0xFFFFFFFF {
			needsHi = true
		}
		if len(data) > 0 {
			if _, err := f.Write(data); err != nil {
				return err
			}
		}
		bt.entries = append(bt.entries, blockTableEntry{
			FilePos:        uint32(pos),
			CompressedSize: uint32(len(data)),
			FileSize:       fileSize,
			Flags:          flags,
		})
		bt.hiOffset = append(bt.hiOffset, uint16(uint64(pos)>>32))
		idx := uint32(len(bt.entries) - 1)
		if !ht.insertAt(mpqPath, localeNeutral, idx) {
			return &CorruptTableError{Which: "hash", Reason: "table full"}
		}
		entryPaths = append(entryPaths, mpqPath)
		if b.cfg.withAttributes {
			attrs.setEntry(attrIdx, content)
			attrIdx++
		}
		return nil
	}

	var listfileBuf []byte
	for i, cf := range compiled {
		if err := writeEntry(cf.mpqPath, cf.data, b.pending[i].data, cf.flags, cf.fileSize); err != nil {
			return wrapf(err, "write %s", cf.mpqPath)
		}
		if b.cfg.withListfile {
			listfileBuf = append(listfileBuf, []byte(cf.mpqPath+"\r\n")...)
		}
	}

	if b.cfg.withListfile && len(listfileBuf) > 0 {
		lf, flags, size := compileBlob(listfileBuf, b.cfg.codecMask)
		if err := writeEntry("(listfile)", lf, listfileBuf, flags|fileExists|fileSingleUnit, size); err != nil {
			return wrapf(err, "write listfile")
		}
	}

	if b.cfg.withAttributes {
		// The (attributes) entry's own slot carries a zeroed record by
		// convention; reserve it before building.
		attrs.setEntry(attrIdx, nil)
		attrData := attrs.build()
		ab, flags, size := compileBlob(attrData, b.cfg.codecMask)
		if err := writeEntry("(attributes)", ab, nil, flags|fileExists|fileSingleUnit, size); err != nil {
			return wrapf(err, "write attributes")
		}
	}

	var sigBlockIdx int = -1
	if b.cfg.weakSigningKey != nil {
		placeholder := make([]byte, weakSignatureFileSize)
		if err := writeEntry("(signature)", placeholder, nil, fileExists|fileSingleUnit, weakSignatureFileSize); err != nil {
			return wrapf(err, "reserve signature")
		}
		sigBlockIdx = len(bt.entries) - 1
	}

	var hetOffset, betOffset int64
	if b.cfg.withHETBET && len(entryPaths) > 0 {
		het, bet := buildHetBet(entryPaths, bt)
		hetOffset, _ = f.Seek(0, 1)
		if _, err := f.Write(encodeHetTable(het)); err != nil {
			return wrapf(err, "write het table")
		}
		betOffset, _ = f.Seek(0, 1)
		if _, err := f.Write(encodeBetTable(bet)); err != nil {
			return wrapf(err, "write bet table")
		}
	}

	hashTableOffset, _ := f.Seek(0, 1)
	if _, err := f.Write(encodeHashTable(ht)); err != nil {
		return wrapf(err, "write hash table")
	}

	blockTableOffset, _ := f.Seek(0, 1)
	if _, err := f.Write(encodeBlockTable(bt)); err != nil {
		return wrapf(err, "write block table")
	}

	var hiBlockOffset int64
	if needsHi && bt.needsHiBlockTable() {
		hiBlockOffset, _ = f.Seek(0, 1)
		if _, err := f.Write(encodeHiBlockTable(bt.hiOffset)); err != nil {
			return wrapf(err, "write hi-block table")
		}
	}

	totalSize, _ := f.Seek(0, 1)

	h := &archiveHeader{}
	h.headerV1 = headerV1{
		Magic:            mpqMagic,
		HeaderSize:       headerSize,
		ArchiveSize:      uint32(totalSize),
		FormatVersion:    uint16(b.cfg.version),
		SectorSizeShift:  b.cfg.sectorSizeShift,
		HashTableOffset:  uint32(hashTableOffset),
		BlockTableOffset: uint32(blockTableOffset),
		HashTableCount:   hashSize,
		BlockTableCount:  uint32(len(bt.entries)),
	}
	if b.cfg.version >= formatVersion2 {
		if needsHi && bt.needsHiBlockTable() {
			h.headerV2Ext.HiBlockTableOffset64 = uint64(hiBlockOffset)
		}
	}
	if b.cfg.version >= formatVersion3 {
		h.headerV3Ext.ArchiveSize64 = uint64(totalSize)
		if hetOffset != 0 {
			h.headerV3Ext.HetTableOffset = uint64(hetOffset)
			h.headerV3Ext.BetTableOffset = uint64(betOffset)
		}
	}

	if _, err := f.Seek(0, 0); err != nil {
		return wrapf(err, "seek to header")
	}
	if err := writeArchiveHeader(f, h); err != nil {
		return wrapf(err, "write header")
	}

	if sigBlockIdx >= 0 {
		e := bt.entries[sigBlockIdx]
		sigPos := int64(e.FilePos)
		sig, err := GenerateWeakSignature(f, totalSize, [2]int64{sigPos, sigPos + weakSignatureFileSize}, b.cfg.weakSigningKey)
		if err != nil {
			return wrapf(err, "generate weak signature")
		}
		if _, err := f.WriteAt(sig[:], sigPos+8); err != nil {
			return wrapf(err, "write weak signature")
		}
	}

	return nil
}

// compile runs sector compression for every pending file concurrently;
// Build then lays the results out sequentially, since byte offsets
// depend on write order.
func (b *Builder) compile(sectorSize uint32) ([]compiledFile, error) {
	out := make([]compiledFile, len(b.pending))

	g := new(errgroup.Group)
	for i := range b.pending {
		i := i
		pf := b.pending[i]
		g.Go(func() error {
			if pf.isDeleteMarker {
				out[i] = compiledFile{
					mpqPath:        pf.mpqPath,
					flags:          fileExists | fileDeleteMarker,
					isDeleteMarker: true,
				}
				return nil
			}

			if b.dedup != nil {
				if sb, ok := b.dedup.lookup(pf.data); ok {
					flags := sb.flags
					if pf.isPatchFile {
						flags |= filePatchFile
					}
					out[i] = compiledFile{
						mpqPath:  pf.mpqPath,
						data:     sb.bytes,
						flags:    flags,
						fileSize: sb.fileSize,
					}
					return nil
				}
			}

			data, flags, err := b.compileOne(pf, sectorSize)
			if err != nil {
				return err
			}
			flags |= fileExists
			if pf.isPatchFile {
				flags |= filePatchFile
			}
			out[i] = compiledFile{
				mpqPath:  pf.mpqPath,
				data:     data,
				flags:    flags,
				fileSize: uint32(len(pf.data)),
			}
			if b.dedup != nil {
				b.dedup.store(pf.data, storedBlock{bytes: data, fileSize: uint32(len(pf.data)), flags: flags &^ filePatchFile})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Builder) compileOne(pf pendingFile, sectorSize uint32) ([]byte, uint32, error) {
	if len(pf.data) <= int(sectorSize) {
		data, flags, _ := compileBlob(pf.data, b.cfg.codecMask)
		flags |= fileSingleUnit
		if pf.sectorCRC {
			data = append(data, le32bytes(sectorChecksum(pf.data))...)
			flags |= fileSectorCRC
		}
		return data, flags, nil
	}
	return b.compileSectored(pf, sectorSize)
}

func (b *Builder) compileSectored(pf pendingFile, sectorSize uint32) ([]byte, uint32, error) {
	numSectors := (uint32(len(pf.data)) + sectorSize - 1) / sectorSize
	sectors := make([][]byte, numSectors)
	crcs := make([]uint32, numSectors)

	for i := uint32(0); i < numSectors; i++ {
		start := i * sectorSize
		end := start + sectorSize
		if end > uint32(len(pf.data)) {
			end = uint32(len(pf.data))
		}
		chunk := pf.data[start:end]
		sectors[i] = compileSector(chunk, b.cfg.codecMask)
		if pf.sectorCRC {
			crcs[i] = sectorChecksum(chunk)
		}
	}

	offsetTableLen := (numSectors + 1) * 4
	crcTableLen := uint32(0)
	if pf.sectorCRC {
		crcTableLen = numSectors * 4
	}

	cur := offsetTableLen + crcTableLen
	offsets := make([]uint32, numSectors+1)
	for i, s := range sectors {
		offsets[i] = cur
		cur += uint32(len(s))
	}
	offsets[numSectors] = cur

	buf := make([]byte, cur)
	pos := uint32(0)
	for _, off := range offsets {
		copy(buf[pos:], le32bytes(off))
		pos += 4
	}
	if pf.sectorCRC {
		for _, c := range crcs {
			copy(buf[pos:], le32bytes(c))
			pos += 4
		}
	}
	for _, s := range sectors {
		copy(buf[pos:], s)
		pos += uint32(len(s))
	}

	flags := uint32(fileCompress)
	if pf.sectorCRC {
		flags |= fileSectorCRC
	}
	return buf, flags, nil
}

// compileSector compresses one sector, falling back to a raw,
// unmasked copy when compression doesn't shrink it (spec §4.7).
func compileSector(data []byte, mask byte) []byte {
	compressed, err := compressSector(data, mask)
	if err != nil || len(compressed)+1 >= len(data) {
		return append([]byte(nil), data...)
	}
	return append([]byte{mask}, compressed...)
}

// compileBlob compresses a whole single-unit blob, returning its
// on-disk bytes and the flags the caller should OR in (fileCompress
// if shrunk, nothing otherwise), plus its logical size.
func compileBlob(data []byte, mask byte) ([]byte, uint32, uint32) {
	if len(data) == 0 {
		return nil, 0, 0
	}
	compressed := compileSector(data, mask)
	flags := uint32(0)
	if len(compressed) < len(data) {
		flags = fileCompress
	} else {
		compressed = data
	}
	return compressed, flags, uint32(len(data))
}

func le32bytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func nextPow2(n uint32) uint32 {
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

func newEmptyHashTable(size uint32) *hashTable {
	entries := make([]hashTableEntry, size)
	for i := range entries {
		entries[i] = hashTableEntry{
			HashA:      hashTableEmpty,
			HashB:      hashTableEmpty,
			Locale:     0xFFFF,
			Platform:   0xFFFF,
			BlockIndex: hashTableEmpty,
		}
	}
	return &hashTable{entries: entries}
}

// buildHetBet derives a V3+ HET/BET directory from the just-written
// block table: bet index i always matches bt.entries[i], so no separate
// index remapping is needed between the two tables.
func buildHetBet(paths []string, bt *blockTable) (*hetTable, *betTable) {
	n := len(paths)

	bet := &betTable{fileCount: n}
	bet.filePos = make([]uint64, n)
	bet.compressedSize = make([]uint64, n)
	bet.fileSize = make([]uint64, n)
	bet.flagIndex = make([]uint32, n)
	bet.nameHash2 = make([]uint64, n)

	flagIndex := make(map[uint32]int)
	var flagsList []uint32
	for i, e := range bt.entries {
		pos := uint64(e.FilePos)
		if bt.hiOffset != nil {
			pos |= uint64(bt.hiOffset[i]) << 32
		}
		bet.filePos[i] = pos
		bet.compressedSize[i] = uint64(e.CompressedSize)
		bet.fileSize[i] = uint64(e.FileSize)

		idx, ok := flagIndex[e.Flags]
		if !ok {
			idx = len(flagsList)
			flagsList = append(flagsList, e.Flags)
			flagIndex[e.Flags] = idx
		}
		bet.flagIndex[i] = uint32(idx)
		bet.nameHash2[i] = hetNameHash64(paths[i])
	}
	bet.flags = flagsList

	hashSize := nextPow2(uint32(n)*2 + 4)
	idxBits := bitsNeeded(uint64(n))

	het := &hetTable{
		header: hetTableHeader{
			Magic:          hetMagic,
			Version:        1,
			MaxFileCount:   uint32(n),
			HashTableSize:  hashSize,
			HashEntrySize:  8,
			TotalIndexSize: uint32(idxBits),
			BlockTableSize: uint32(n),
		},
		andMask:   ^uint64(0),
		orMask:    0,
		hashTable: make([]byte, hashSize),
		betIndex:  make([]uint32, hashSize),
	}
	for i, p := range paths {
		hash := hetNameHash64(p)
		top := byte(hash >> (64 - het.header.HashEntrySize))
		if top == 0 {
			top = 1
		}
		slot := hash % uint64(hashSize)
		for het.hashTable[slot] != 0 {
			slot = (slot + 1) % uint64(hashSize)
		}
		het.hashTable[slot] = top
		het.betIndex[slot] = uint32(i)
	}

	return het, bet
}

// insertAt is the builder-side counterpart of hashTable.insert that
// fails loudly (rather than silently overwriting) when the table is
// unexpectedly full; Build sizes the table generously enough that
// this should never trigger in practice.
func (ht *hashTable) insertAt(mpqPath string, locale uint16, blockIndex uint32) bool {
	_, ok := ht.insert(mpqPath, hashTableEntry{
		HashA:      hashString(mpqPath, hashTypeNameA),
		HashB:      hashString(mpqPath, hashTypeNameB),
		Locale:     locale,
		Platform:   0,
		BlockIndex: blockIndex,
	})
	return ok
}
