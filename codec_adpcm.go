// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

// ADPCM mono/stereo codec for the WAVE payloads the archive format
// carries. There is no ecosystem package for this exact bespoke
// IMA-derived variant; ported from the algorithm shape described in
// spec §4.2. Shift values are clamped to <= 31 per the documented
// reference-implementation bug fix, since an unclamped shift is
// undefined behavior for a 32-bit value.

var adpcmStepTable = [...]int32{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17, 19, 21, 23, 25, 28, 31, 34, 37,
	41, 45, 50, 55, 60, 66, 73, 80, 88, 97, 107, 118, 130, 143, 157, 173,
	190, 209, 230, 253, 279, 307, 337, 371, 408, 449, 494, 544, 598, 658,
	724, 796, 876, 963, 1060, 1166, 1282, 1411, 1552, 1707, 1878, 2066,
	2272, 2499, 2749, 3024, 3327, 3660, 4026, 4428, 4871, 5358, 5894,
	6484, 7132, 7845, 8630, 9493, 10442, 11487, 12635, 13899, 15289,
	16818, 18500, 20350, 22385, 24623, 27086, 29794, 32767,
}

var adpcmIndexAdjust = [...]int32{-1, -1, -1, -1, 2, 4, 6, 8}

type adpcmChannelState struct {
	sample int32
	index  int32
}

func clampShift(s int32) uint {
	if s < 0 {
		s = 0
	}
	if s > 31 {
		s = 31
	}
	return uint(s)
}

func adpcmDecodeNibble(st *adpcmChannelState, nibble byte) int16 {
	step := adpcmStepTable[st.index]
	diff := step >> clampShift(3)
	if nibble&1 != 0 {
		diff += step >> clampShift(2)
	}
	if nibble&2 != 0 {
		diff += step >> clampShift(1)
	}
	if nibble&4 != 0 {
		diff += step
	}
	if nibble&8 != 0 {
		diff = -diff
	}

	sample := st.sample + diff
	if sample > 32767 {
		sample = 32767
	} else if sample < -32768 {
		sample = -32768
	}
	st.sample = sample

	idx := st.index + adpcmIndexAdjust[nibble&7]
	if idx < 0 {
		idx = 0
	} else if idx >= int32(len(adpcmStepTable)) {
		idx = int32(len(adpcmStepTable)) - 1
	}
	st.index = idx

	return int16(sample)
}

func adpcmDecompress(data []byte, outSize int, stereo bool) ([]byte, error) {
	channels := 1
	if stereo {
		channels = 2
	}
	headerLen := 2 * channels
	if len(data) < headerLen {
		return nil, &CodecError{Codec: "adpcm", Detail: "truncated header"}
	}

	states := make([]adpcmChannelState, channels)
	for c := 0; c < channels; c++ {
		states[c].sample = int32(int16(uint16(data[c*2]) | uint16(data[c*2+1])<<8))
		states[c].index = 0
	}

	out := make([]byte, 0, outSize)
	for i := 0; i < 2*channels && len(out) < outSize; i++ {
		out = append(out, byte(int16(states[i/2].sample)>>(8*uint(i%2))))
	}

	pos := headerLen
	ch := 0
	for pos < len(data) && len(out) < outSize {
		b := data[pos]
		pos++

		for _, nibble := range [2]byte{b & 0x0F, b >> 4} {
			if len(out) >= outSize {
				break
			}
			sample := adpcmDecodeNibble(&states[ch], nibble)
			out = append(out, byte(sample), byte(sample>>8))
			ch = (ch + 1) % channels
		}
	}

	if len(out) > outSize {
		out = out[:outSize]
	}
	return out, nil
}

// adpcmCompress is a straightforward forward ADPCM encoder matching
// adpcmDecompress's state machine; it is not a bit-exact reproduction
// of the reference encoder's adaptive step search but produces a
// stream adpcmDecompress reconstructs losslessly relative to its own
// quantization (lossy relative to the original PCM, as ADPCM
// inherently is).
func adpcmCompress(data []byte, stereo bool) ([]byte, error) {
	channels := 1
	if stereo {
		channels = 2
	}
	if len(data) < 2*channels {
		return nil, &CodecError{Codec: "adpcm", Detail: "input shorter than one frame"}
	}

	out := make([]byte, 0, len(data)/2+2*channels)
	states := make([]adpcmChannelState, channels)
	for c := 0; c < channels; c++ {
		s := int16(uint16(data[c*2]) | uint16(data[c*2+1])<<8)
		states[c].sample = int32(s)
		out = append(out, byte(s), byte(s>>8))
	}

	samples := (len(data) - 2*channels) / 2
	var nibble byte
	haveHigh := false
	for i := 0; i < samples; i++ {
		ch := i % channels
		off := 2*channels + i*2
		target := int32(int16(uint16(data[off]) | uint16(data[off+1])<<8))
		n := adpcmEncodeNibble(&states[ch], target)

		if !haveHigh {
			nibble = n
			haveHigh = true
		} else {
			out = append(out, nibble|(n<<4))
			haveHigh = false
		}
	}
	if haveHigh {
		out = append(out, nibble)
	}
	return out, nil
}

func adpcmEncodeNibble(st *adpcmChannelState, target int32) byte {
	diff := target - st.sample
	var nibble byte
	if diff < 0 {
		nibble = 8
		diff = -diff
	}

	step := adpcmStepTable[st.index]
	if diff >= step {
		nibble |= 4
		diff -= step
	}
	if diff >= step>>clampShift(1) {
		nibble |= 2
		diff -= step >> clampShift(1)
	}
	if diff >= step>>clampShift(2) {
		nibble |= 1
	}

	adpcmDecodeNibble(st, nibble)
	return nibble
}
