// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import "crypto/rsa"

// builderConfig collects a Builder's construction-time choices. This
// is an ambient convention (functional options), not a concern any
// third-party package owns.
type builderConfig struct {
	version           int
	sectorSizeShift   uint16
	codecMask         byte
	withListfile      bool
	withAttributes    bool
	withHETBET        bool
	weakSigningKey    *rsa.PrivateKey
	minSectoredSize   int
	dedup             bool
}

func defaultBuilderConfig() builderConfig {
	return builderConfig{
		version:         formatVersion1,
		sectorSizeShift: defaultSectorSizeShift,
		codecMask:       codecZlib,
		withListfile:    true,
		withAttributes:  true,
		minSectoredSize: defaultSectorSize * 2,
		dedup:           true,
	}
}

// BuilderOption configures a Builder.
type BuilderOption func(*builderConfig)

// WithVersion selects the container format version (formatVersion1..4).
func WithVersion(v int) BuilderOption {
	return func(c *builderConfig) { c.version = v }
}

// WithSectorSizeShift sets the sector size as 512<<shift.
func WithSectorSizeShift(shift uint16) BuilderOption {
	return func(c *builderConfig) { c.sectorSizeShift = shift }
}

// WithCodec sets the per-sector compression mask applied to every file
// the builder compresses.
func WithCodec(mask byte) BuilderOption {
	return func(c *builderConfig) { c.codecMask = mask }
}

// WithListfile controls whether a (listfile) entry is synthesized.
func WithListfile(enabled bool) BuilderOption {
	return func(c *builderConfig) { c.withListfile = enabled }
}

// WithAttributes controls whether an (attributes) entry is synthesized.
func WithAttributes(enabled bool) BuilderOption {
	return func(c *builderConfig) { c.withAttributes = enabled }
}

// WithHETBET requests a V3+ HET/BET directory be emitted alongside the
// classic hash/block tables. Forces the version up to formatVersion3
// if a lower version was selected.
func WithHETBET(enabled bool) BuilderOption {
	return func(c *builderConfig) {
		c.withHETBET = enabled
		if enabled && c.version < formatVersion3 {
			c.version = formatVersion3
		}
	}
}

// WithWeakSignature requests a weak (signature) file be generated and
// signed with priv.
func WithWeakSignature(priv *rsa.PrivateKey) BuilderOption {
	return func(c *builderConfig) { c.weakSigningKey = priv }
}

// WithDedup enables or disables the whole-file content dedup cache.
func WithDedup(enabled bool) BuilderOption {
	return func(c *builderConfig) { c.dedup = enabled }
}
