// Package env reads process configuration from the environment and optional
// dotenv files.
package env

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultFiles are read by Load when no file is named. Earlier files win
// because godotenv never overrides a variable that is already set.
var DefaultFiles = []string{".env.local", ".env"}

// Load applies each dotenv file that exists and returns the ones it read.
// Variables already present in the environment are left alone.
func Load(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = DefaultFiles
	}
	var loaded []string
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return loaded, err
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
