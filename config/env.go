package config

import (
	"strings"

	"xchg/pkg/types"
	"xchg/pkg/utils"

	"github.com/joho/godotenv"
)

var Env = Environment{}

type Environment struct {
	EnvName  types.EnvName
	YamlMode types.YamlMode
}

func init() {
	godotenv.Load()
	Env = LoadEnvironment()
}

func LoadEnvironment() Environment {
	var env Environment
	switch strings.ToLower(utils.LoadEnvWithDefault("ENVIRONMENT", "local")) {
	case "prod", "production":
		env.EnvName = types.EnvProd
	case "dev", "staging":
		env.EnvName = types.EnvDev
	default:
		env.EnvName = types.EnvLocal
	}
	switch strings.ToUpper(utils.LoadEnvWithDefault("CONFIG_SOURCE", "")) {
	case string(types.YamlModeS3):
		env.YamlMode = types.YamlModeS3
	default:
		env.YamlMode = types.YamlModeLocal
	}
	return env
}
