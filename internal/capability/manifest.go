// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Manifest file support: the supplemental "--cap-file grants.yaml"
// loading path (SPEC_FULL.md's capability manifest file concretization)
// as an alternative to repeating "--cap NAME=PATTERN:ACTIONS" flags.
// Grounded directly on the teacher's internal/plugin/schema.go: reflect
// a JSON Schema from the manifest's Go struct with invopop/jsonschema,
// compile it once with santhosh-tekuri/jsonschema/v6, and validate
// gopkg.in/yaml.v3-parsed manifest data against it before any token is
// minted.
package capability

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// GrantSpec is one named entry in a capability manifest file: the tokens
// a "capability NAME { }" block should receive, expressed declaratively
// rather than via repeated --cap flags.
type GrantSpec struct {
	Name     string   `yaml:"name" json:"name" jsonschema:"required"`
	Resource string   `yaml:"resource" json:"resource" jsonschema:"required,description=glob pattern over dot-separated resource segments"`
	Actions  []string `yaml:"actions" json:"actions" jsonschema:"required,minItems=1"`
	ExpireAt *string  `yaml:"expire_at,omitempty" json:"expire_at,omitempty" jsonschema:"description=RFC3339 timestamp; omit for a non-expiring grant"`
}

// Manifest is the top-level shape of a --cap-file YAML document.
type Manifest struct {
	Grants []GrantSpec `yaml:"grants" json:"grants" jsonschema:"required,minItems=1"`
}

var schemaState struct {
	once   sync.Once
	schema *jschema.Schema
	err    error
}

// SchemaID is the manifest schema's JSON Schema $id.
const SchemaID = "https://mlpy.dev/schemas/capability-manifest.schema.json"

// GenerateSchema reflects a JSON Schema from Manifest, the same
// reflect-from-struct technique the teacher's plugin manifest schema
// uses, so the schema never drifts from the Go type it validates.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(&Manifest{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "mlpy Capability Manifest"
	schema.Description = "Schema for mlpy --cap-file capability grant manifests"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("capability: marshal manifest schema: %w", err)
	}
	return append(data, '\n'), nil
}

func compiledSchema() (*jschema.Schema, error) {
	schemaState.once.Do(func() {
		raw, err := GenerateSchema()
		if err != nil {
			schemaState.err = err
			return
		}
		var schemaData any
		if err := json.Unmarshal(raw, &schemaData); err != nil {
			schemaState.err = fmt.Errorf("capability: parse generated schema: %w", err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("capability-manifest.json", schemaData); err != nil {
			schemaState.err = fmt.Errorf("capability: add schema resource: %w", err)
			return
		}
		sch, err := c.Compile("capability-manifest.json")
		if err != nil {
			schemaState.err = fmt.Errorf("capability: compile schema: %w", err)
			return
		}
		schemaState.schema = sch
	})
	return schemaState.schema, schemaState.err
}

// LoadManifest parses and schema-validates a --cap-file manifest, then
// mints one Token per grant. Validation failures and malformed
// timestamps both abort before any token is minted: a manifest is
// all-or-nothing, never partially honored.
func LoadManifest(data []byte) (map[string][]Token, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("capability: invalid YAML manifest: %w", err)
	}
	jsonData := toJSONTypes(raw)

	sch, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("capability: schema unavailable: %w", err)
	}
	if err := sch.Validate(jsonData); err != nil {
		return nil, fmt.Errorf("capability: manifest failed schema validation: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("capability: decode manifest: %w", err)
	}

	grants := make(map[string][]Token, len(manifest.Grants))
	for _, g := range manifest.Grants {
		var expiry *time.Time
		if g.ExpireAt != nil {
			t, err := time.Parse(time.RFC3339, *g.ExpireAt)
			if err != nil {
				return nil, fmt.Errorf("capability: grant %q: invalid expire_at: %w", g.Name, err)
			}
			expiry = &t
		}
		actions := make([]Action, len(g.Actions))
		for i, a := range g.Actions {
			actions[i] = Action(a)
		}
		tok, err := NewToken(g.Resource, actions, expiry, "manifest", g.Name)
		if err != nil {
			return nil, fmt.Errorf("capability: grant %q: invalid resource pattern %q: %w", g.Name, g.Resource, err)
		}
		grants[g.Name] = append(grants[g.Name], tok)
	}
	return grants, nil
}

// toJSONTypes converts yaml.v3's map[string]any-shaped decode output
// into plain JSON-compatible types the jsonschema validator expects.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = toJSONTypes(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = toJSONTypes(vv)
		}
		return out
	default:
		return val
	}
}
