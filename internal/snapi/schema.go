package snapi

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentworkforce/notefs/internal/notefs"
)

const schemaBaseURL = "https://schemas.notefs.local/"

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[notefs.Kind]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[notefs.Kind]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		files := map[notefs.Kind]string{
			notefs.KindNote: "schemas/note.json",
			notefs.KindTag:  "schemas/tag.json",
		}
		compiled := map[notefs.Kind]*jsonschema.Schema{}
		for kind, name := range files {
			data, err := schemaFS.ReadFile(name)
			if err != nil {
				schemasErr = err
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
			if err != nil {
				schemasErr = fmt.Errorf("parse %s: %w", name, err)
				return
			}
			url := schemaBaseURL + path.Base(name)
			if err := compiler.AddResource(url, doc); err != nil {
				schemasErr = fmt.Errorf("add %s: %w", name, err)
				return
			}
			schema, err := compiler.Compile(url)
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", name, err)
				return
			}
			compiled[kind] = schema
		}
		schemas = compiled
	})
	return schemas, schemasErr
}

// validateContent checks a decoded note or tag payload. Other kinds pass.
func validateContent(kind notefs.Kind, data []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	schema, ok := all[kind]
	if !ok {
		return nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s content: %w", kind, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%s content: %w", kind, err)
	}
	return nil
}
