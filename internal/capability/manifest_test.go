// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlpy/internal/capability"
)

func TestLoadManifest_ValidGrantsMintTokens(t *testing.T) {
	data := []byte(`
grants:
  - name: net
    resource: network.*
    actions: [connect]
  - name: fs
    resource: fs.tmp.*
    actions: [read, write]
`)
	grants, err := capability.LoadManifest(data)
	require.NoError(t, err)
	assert.Len(t, grants["net"], 1)
	assert.Len(t, grants["fs"], 1)
}

func TestLoadManifest_MissingRequiredFieldFailsValidation(t *testing.T) {
	data := []byte(`
grants:
  - name: net
    actions: [connect]
`)
	_, err := capability.LoadManifest(data)
	assert.Error(t, err)
}

func TestLoadManifest_InvalidExpiryRejected(t *testing.T) {
	data := []byte(`
grants:
  - name: net
    resource: network.*
    actions: [connect]
    expire_at: "not-a-timestamp"
`)
	_, err := capability.LoadManifest(data)
	assert.Error(t, err)
}

func TestGenerateSchema_ProducesValidJSON(t *testing.T) {
	data, err := capability.GenerateSchema()
	require.NoError(t, err)
	assert.Contains(t, string(data), "capability-manifest.schema.json")
}
