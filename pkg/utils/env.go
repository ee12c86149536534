package utils

import (
	"fmt"
	"os"
	"strconv"
)

func LoadEnv(key string) (string, error) {
	value, valid := os.LookupEnv(key)
	if !valid {
		return "", fmt.Errorf("fail to load env '%v'", key)
	}
	if value == "" {
		return "", fmt.Errorf("env '%v' is empty", key)
	}
	return value, nil
}

func LoadEnvWithDefault(key string, defaultValue string) string {
	value, valid := os.LookupEnv(key)
	if !valid || value == "" {
		return defaultValue
	}
	return value
}

func LoadIntEnv(key string) (int, error) {
	value, err := LoadEnv(key)
	if err != nil {
		return 0, err
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("env '%v' is not integer", key)
	}
	return intValue, nil
}

// LoadBoolEnvWithDefault accepts what strconv.ParseBool does and falls back
// to defaultValue for anything else.
func LoadBoolEnvWithDefault(key string, defaultValue bool) bool {
	value, valid := os.LookupEnv(key)
	if !valid || value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
