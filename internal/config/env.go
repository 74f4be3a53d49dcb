package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Credential environment variables, read once at the start of each stage.
const (
	GroupMeTokenEnv = "GROUPME_API_TOKEN"
	SlackTokenEnv   = "SLACK_API_TOKEN"
)

// LoadEnv loads KEY=VALUE pairs from the given .env files into the process
// environment. Variables already set win, and missing files are skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Credential returns the value of the named environment variable.
func Credential(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("%s is not set", name)
	}
	return v, nil
}
