package env

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// DotEnvFile is the file name looked up next to the config file
const DotEnvFile = ".env"

// LoadDotEnv parses a .env file and returns key-value pairs. It does not
// modify the process environment.
func LoadDotEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	return vars, nil
}

// LoadDotEnvIfExists is LoadDotEnv that treats a missing file as empty
func LoadDotEnvIfExists(path string) (map[string]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	return LoadDotEnv(path)
}
