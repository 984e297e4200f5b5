// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package sandbox_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mlpy/internal/sandbox"
)

func TestAllowedFSPath_MatchesWhitelistGlob(t *testing.T) {
	limits := sandbox.Limits{FSWhitelist: []string{"/tmp/work/**"}}
	assert.True(t, sandbox.AllowedFSPath(limits, "/tmp/work/out.txt"))
	assert.False(t, sandbox.AllowedFSPath(limits, "/etc/passwd"))
}

func TestAllowedNetworkTarget_DeniedByDefault(t *testing.T) {
	limits := sandbox.Limits{}
	assert.False(t, sandbox.AllowedNetworkTarget(limits, "example.com:443"))
}

func TestAllowedNetworkTarget_AllowlistRestricts(t *testing.T) {
	limits := sandbox.Limits{AllowNetwork: true, NetworkAllow: []string{"*.example.com:443"}}
	assert.True(t, sandbox.AllowedNetworkTarget(limits, "api.example.com:443"))
	assert.False(t, sandbox.AllowedNetworkTarget(limits, "evil.test:443"))
}

func TestAllowedNetworkTarget_AllowNetworkWithNoAllowlistPermitsAll(t *testing.T) {
	limits := sandbox.Limits{AllowNetwork: true}
	assert.True(t, sandbox.AllowedNetworkTarget(limits, "anything:80"))
}

func TestDefaultLimits_AreNonZero(t *testing.T) {
	l := sandbox.DefaultLimits()
	assert.Greater(t, l.WallClock.Seconds(), 0.0)
	assert.Greater(t, l.MemoryBytes, uint64(0))
	assert.Greater(t, l.MaxOutputLen, 0)
}
