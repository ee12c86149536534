package config

import (
	"xchg/pkg/utils"

	"github.com/invopop/jsonschema"
)

func Schema() *jsonschema.Schema {
	schema := utils.GenerateSchema[Config]()
	schema.Title = "xchg configuration"
	return schema
}
