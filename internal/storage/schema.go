package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/inferprice/pkg/models"
)

// Canonical store file names.
const (
	ModelsFile     = "models.json"
	CategoriesFile = "categories.json"
	VendorsFile    = "vendors.json"
)

var fileItemTypes = map[string]any{
	ModelsFile:     &models.Model{},
	CategoriesFile: &models.Category{},
	VendorsFile:    &models.Vendor{},
}

// FileSchema returns the JSON Schema of one canonical store file: an array
// of the entity reflected from pkg/models.
func FileSchema(name string) ([]byte, error) {
	item, ok := fileItemTypes[name]
	if !ok {
		return nil, fmt.Errorf("no schema for %q", name)
	}
	r := &invopop.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	items := r.Reflect(item)
	items.Version = ""
	schema := &invopop.Schema{
		Version: invopop.Version,
		Title:   name,
		Type:    "array",
		Items:   items,
	}
	return json.MarshalIndent(schema, "", "  ")
}

var schemaCache sync.Map

func compiledFileSchema(name string) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	raw, err := FileSchema(name)
	if err != nil {
		return nil, err
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	schemaCache.Store(name, compiled)
	return compiled, nil
}

// ValidateFile checks the contents of a canonical store file against its
// schema.
func ValidateFile(name string, data []byte) error {
	schema, err := compiledFileSchema(name)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("%s invalid: %w", name, err)
	}
	return nil
}
