package apiclient

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://ev2.invalid/schemas/"

type schemaSet struct {
	envelope    *jsonschema.Schema
	list        *jsonschema.Schema
	item        *jsonschema.Schema
	batch       *jsonschema.Schema
	collections *jsonschema.Schema
}

var (
	schemasOnce sync.Once
	schemas     *schemaSet
	schemasErr  error
)

// loadSchemas compiles the embedded payload schemas once per process.
func loadSchemas() (*schemaSet, error) {
	schemasOnce.Do(func() {
		schemas, schemasErr = compileSchemas()
	})
	return schemas, schemasErr
}

func compileSchemas() (*schemaSet, error) {
	c := jsonschema.NewCompiler()

	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", e.Name(), err)
		}
		if err := c.AddResource(schemaBase+e.Name(), doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", e.Name(), err)
		}
	}

	set := &schemaSet{}
	for name, dst := range map[string]**jsonschema.Schema{
		"envelope.json":    &set.envelope,
		"list.json":        &set.list,
		"item.json":        &set.item,
		"batch.json":       &set.batch,
		"collections.json": &set.collections,
	} {
		sch, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		*dst = sch
	}
	return set, nil
}

// validate checks a raw JSON document against sch.
func validate(sch *jsonschema.Schema, raw string) error {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
