// Package schema implements strict
// validation of tool call arguments against the tool's registered
// JSON Schema, using santhosh-tekuri/jsonschema/v5 — the same
// dependency this repo vendors (go.mod:
// github.com/santhosh-tekuri/jsonschema/v5 v5.3.1) and that goa-ai uses
// (its v6) for the same purpose.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator compiles and caches tool schemas by name.
type Validator struct {
	compiled map[string]*jsonschema.Schema
}

// NewValidator returns an empty validator; call Compile per tool before
// Validate is called against it.
func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

// Compile parses and strict-compiles a tool's JSON Schema parameters,
// caching the result under toolName.
func (v *Validator) Compile(toolName string, rawSchema json.RawMessage) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	c.ExtractAnnotations = false
	if err := c.AddResource(toolName+".json", bytes.NewReader(rawSchema)); err != nil {
		return fmt.Errorf("schema: add resource %s: %w", toolName, err)
	}
	compiled, err := c.Compile(toolName + ".json")
	if err != nil {
		return fmt.Errorf("schema: compile %s: %w", toolName, err)
	}
	v.compiled[toolName] = compiled
	return nil
}

// Validate validates arguments against toolName's compiled schema in
// strict mode: required fields, additionalProperties:false, per-
// property type checks with array item recursion are
// all enforced by the underlying Draft7 validator, since the
// registry's built-in schemas already declare
// "additionalProperties": false.
func (v *Validator) Validate(toolName string, arguments json.RawMessage) error {
	s, ok := v.compiled[toolName]
	if !ok {
		return fmt.Errorf("schema: no compiled schema for tool %q", toolName)
	}
	var doc any
	if len(arguments) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(arguments, &doc); err != nil {
		return fmt.Errorf("schema: arguments are not valid JSON: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return humanize(err)
	}
	return nil
}

// humanize converts a jsonschema.ValidationError into the
// human-readable message the kernel relays to the model as a
// developer repair instruction.
func humanize(err error) error {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		if len(ve.Causes) > 0 {
			return fmt.Errorf("%s", ve.Causes[0].Error())
		}
		return fmt.Errorf("%s", ve.Error())
	}
	return err
}
