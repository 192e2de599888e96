package mcp

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// mustSchemaFor derives the JSON schema for a wire type.
func mustSchemaFor[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("schema for wire type: %v", err))
	}
	return schema
}
