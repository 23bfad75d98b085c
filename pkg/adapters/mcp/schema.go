package mcp

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
)

// outputSchema reflects T into a tool output schema. Nested types are emitted
// under $defs and referenced, so recursive types such as DatasetNode.Wrapped
// and FieldSnapshot.Children terminate.
func outputSchema[T any]() mcp.ToolOption {
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		Anonymous:                 true,
		AllowAdditionalProperties: true,
	}
	var zero T
	schema := reflector.Reflect(zero)
	schema.Version = ""
	schema.Type = "object"

	raw, err := json.Marshal(schema)
	if err != nil {
		return func(*mcp.Tool) {}
	}
	return mcp.WithRawOutputSchema(raw)
}
