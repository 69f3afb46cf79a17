// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesBuildParseRoundTrip(t *testing.T) {
	at := newAttributesTable(3)
	at.setEntry(0, []byte("file one"))
	at.setEntry(1, []byte("file two"))
	at.setEntry(2, nil)

	raw := at.build()
	require.NotEmpty(t, raw)

	parsed, err := parseAttributes(raw, 3)
	require.NoError(t, err)
	assert.Equal(t, at.entries, parsed.entries)
	assert.Equal(t, at.flags, parsed.flags)
	assert.False(t, parsed.legacyTailPadding)
}

func TestAttributesLegacyTailPaddingTolerated(t *testing.T) {
	at := newAttributesTable(1)
	at.setEntry(0, []byte("content"))
	raw := at.build()
	raw = append(raw, make([]byte, 28)...)

	parsed, err := parseAttributes(raw, 1)
	require.NoError(t, err)
	assert.True(t, parsed.legacyTailPadding)
}

func TestAttributesEmptyTable(t *testing.T) {
	at := newAttributesTable(0)
	assert.Nil(t, at.build())
}

func TestParseAttributesTruncatedHeader(t *testing.T) {
	_, err := parseAttributes([]byte{1, 2, 3}, 1)
	assert.Error(t, err)
}
