package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotenv loads environment variables from a .env file. ENV_FILE overrides path and
// NO_DOTENV=1 disables loading. Variables already set are kept unless DOTENV_OVERLOAD=1.
// A missing file is not an error.
func LoadDotenv(path string) error {
	if os.Getenv("NO_DOTENV") == "1" {
		return nil
	}

	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		path = envFile
	}

	if path == "" {
		path = ".env"
	}

	if _, err := os.Stat(path); err != nil {
		return nil
	}

	if os.Getenv("DOTENV_OVERLOAD") == "1" {
		return godotenv.Overload(path)
	}

	return godotenv.Load(path)
}
