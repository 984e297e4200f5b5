// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlpy/internal/capability"
)

func TestNewToken_InvalidPatternErrors(t *testing.T) {
	_, err := capability.NewToken("filesystem.[", []capability.Action{"read"}, nil, "test", "n1")
	assert.Error(t, err)
}

func TestNewToken_ValidPatternCompiles(t *testing.T) {
	tok, err := capability.NewToken("filesystem.read.*", []capability.Action{"read"}, nil, "test", "n1")
	require.NoError(t, err)
	assert.Equal(t, "filesystem.read.*", tok.ResourcePattern)
	assert.True(t, tok.Actions["read"])
}
