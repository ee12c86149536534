package utils

import "github.com/invopop/jsonschema"

// GenerateSchema reflects the JSON schema of T, following yaml tags.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}
	var v T
	return reflector.Reflect(v)
}
