package content

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/*.json
var schemaFS embed.FS

// Schemas validates raw page and module documents before they are decoded.
type Schemas struct {
	page   *gojsonschema.Schema
	module *gojsonschema.Schema
}

// LoadSchemas compiles the embedded JSON schemas.
func LoadSchemas() (*Schemas, error) {
	page, err := compileSchema("schema/page.schema.json")
	if err != nil {
		return nil, err
	}
	module, err := compileSchema("schema/module.schema.json")
	if err != nil {
		return nil, err
	}
	return &Schemas{page: page, module: module}, nil
}

func compileSchema(name string) (*gojsonschema.Schema, error) {
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", name, err)
	}
	return s, nil
}

// ValidatePage checks a decoded YAML document against the page schema.
func (s *Schemas) ValidatePage(doc any) error {
	return validate(s.page, doc)
}

// ValidateModule checks a decoded YAML document against the module schema.
func (s *Schemas) ValidateModule(doc any) error {
	return validate(s.module, doc)
}

func validate(schema *gojsonschema.Schema, doc any) error {
	res, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validating document: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema: %s", strings.Join(msgs, "; "))
}
