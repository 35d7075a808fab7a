package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource []byte

// ValidateWithCue checks a YAML scenario document against the embedded
// CUE schema. filename is only used in error positions.
func ValidateWithCue(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile scenario schema: %w", err)
	}

	file, err := yaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}

	final := schema.LookupPath(cue.ParsePath("#Scenario")).Unify(doc)
	if err := final.Err(); err != nil {
		return fmt.Errorf("%w: schema unify failed: %v", ErrInvalidScenario, err)
	}
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: schema validation failed: %v", ErrInvalidScenario, err)
	}
	return nil
}
