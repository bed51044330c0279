package config

import (
	"github.com/joho/godotenv"

	"github.com/angelmondragon/billing-backend/pkg/env"
)

// LoadDotenv loads the file named by BILLING_ENV_FILE, or .env when unset.
// Variables already present in the environment win.
func LoadDotenv() error {
	if path, ok := env.Lookup(EnvEnvFile); ok {
		return godotenv.Load(path)
	}
	return godotenv.Load()
}
