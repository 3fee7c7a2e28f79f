package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://lightcycle.ai/schemas/"

var (
	schemaOnce sync.Once
	schemaErr  error
	schemaSet  map[string]*jsonschema.Schema
)

var schemaFiles = map[string]string{
	TypeHello: "hello.schema.json",
	TypeAct:   "act.schema.json",
	TypeObs:   "obs.schema.json",
}

func loadSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, name := range schemaFiles {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemaErr = fmt.Errorf("read schema %s: %w", name, err)
			return
		}
		if err := c.AddResource(schemaBase+name, bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema %s: %w", name, err)
			return
		}
	}
	schemaSet = make(map[string]*jsonschema.Schema, len(schemaFiles))
	for typ, name := range schemaFiles {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			schemaErr = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		schemaSet[typ] = s
	}
}

// Validate checks raw against the schema for message type typ. Types without a
// schema are accepted.
func Validate(typ string, raw []byte) error {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemaSet[typ]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode %s: %w", typ, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("invalid %s: %w", typ, err)
	}
	return nil
}
