package capability

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator compiles a JSON Schema document into a Validator
// func. Capabilities whose metadata shape is fully declarative use
// this instead of hand-written checks.
func SchemaValidator(namespace, schema string) (func(value any) error, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	url := fmt.Sprintf("https://storefront.schemas.local/%s.schema.json", namespace)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("capability: schema load failed for %s: %w", namespace, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("capability: schema compile failed for %s: %w", namespace, err)
	}

	return func(value any) error {
		if err := compiled.Validate(value); err != nil {
			return fmt.Errorf("capability: schema validation failed for %s: %w", namespace, err)
		}
		return nil
	}, nil
}
