// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package lang_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlpy/internal/lang"
)

func TestIsKeyword(t *testing.T) {
	assert.True(t, lang.IsKeyword("if"))
	assert.True(t, lang.IsKeyword("capability"))
	assert.False(t, lang.IsKeyword("x"))
	assert.False(t, lang.IsKeyword(""))
}

func TestDecodeString_Escapes(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`"hello"`, "hello"},
		{`"a\nb"`, "a\nb"},
		{`"a\tb"`, "a\tb"},
		{`"a\"b"`, `a"b`},
		{`'it\'s'`, "it's"},
		{`"a\\b"`, `a\b`},
		{`"\x41"`, "A"},
	}
	for _, c := range cases {
		got, err := lang.DecodeString(c.raw)
		require.NoError(t, err, c.raw)
		assert.Equal(t, c.want, got)
	}
}

func TestDecodeString_InvalidEscape(t *testing.T) {
	_, err := lang.DecodeString(`"a\qb"`)
	assert.Error(t, err)
}

func TestDecodeString_TruncatedHex(t *testing.T) {
	_, err := lang.DecodeString(`"\x4"`)
	assert.Error(t, err)
}

func TestClassifyNumber(t *testing.T) {
	assert.Equal(t, lang.NumberInt, lang.ClassifyNumber("42"))
	assert.Equal(t, lang.NumberFloat, lang.ClassifyNumber("42.0"))
	assert.Equal(t, lang.NumberFloat, lang.ClassifyNumber("4e2"))
}

func TestParseNumber(t *testing.T) {
	i, _, kind, err := lang.ParseNumber("42")
	require.NoError(t, err)
	assert.Equal(t, lang.NumberInt, kind)
	assert.EqualValues(t, 42, i)

	_, f, kind, err := lang.ParseNumber("3.5")
	require.NoError(t, err)
	assert.Equal(t, lang.NumberFloat, kind)
	assert.InDelta(t, 3.5, f, 0.0001)
}
