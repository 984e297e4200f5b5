// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package capability implements the capability-token runtime contract of
// spec.md §4.7: immutable tokens granting (resource_pattern, actions)
// pairs, and a stack of additive contexts that a "capability NAME { }"
// block pushes on entry and pops on exit. Pattern matching is grounded on
// the plugin capability enforcer's gobwas/glob technique, generalized
// from a flat plugin->capability map into a nested, revocable context
// stack with per-action and per-expiry semantics.
package capability

import (
	"time"

	"github.com/gobwas/glob"
)

// Action is one verb a Token grants against its resource pattern, e.g.
// "read", "write", "connect".
type Action string

// Token is immutable once minted: Context.Push/Pop never mutate a Token,
// they only add or remove it from a Context.
type Token struct {
	ResourcePattern string
	Actions         map[Action]bool
	Expiry          *time.Time
	IssuedBy        string
	Nonce           string

	compiled glob.Glob
}

// NewToken compiles resourcePattern once at mint time so Context.Check
// never pays glob-compile cost on the hot path. '.' is the segment
// separator: '*' matches one segment, '**' matches zero or more,
// mirroring the plugin capability enforcer's convention.
func NewToken(resourcePattern string, actions []Action, expiry *time.Time, issuedBy, nonce string) (Token, error) {
	g, err := glob.Compile(resourcePattern, '.')
	if err != nil {
		return Token{}, err
	}
	actionSet := make(map[Action]bool, len(actions))
	for _, a := range actions {
		actionSet[a] = true
	}
	return Token{
		ResourcePattern: resourcePattern,
		Actions:         actionSet,
		Expiry:          expiry,
		IssuedBy:        issuedBy,
		Nonce:           nonce,
		compiled:        g,
	}, nil
}

// expired reports whether t's expiry, if any, has passed as of now.
func (t Token) expired(now time.Time) bool {
	return t.Expiry != nil && !now.Before(*t.Expiry)
}

// grants reports whether t authorizes action on resource at time now.
func (t Token) grants(resource string, action Action, now time.Time) bool {
	if t.expired(now) {
		return false
	}
	if !t.Actions[action] {
		return false
	}
	return t.compiled.Match(resource)
}
