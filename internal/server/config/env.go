package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "POAPGATE"

// dotEnvFile is loaded from the working directory, if present, before the
// environment is processed. Variables already set in the environment win.
var dotEnvFile = ".env"

// parseEnv overlays POAPGATE_* variables, e.g. POAPGATE_DATABASE_DSN.
// Unset variables leave the current value alone.
func parseEnv(cfg *Config) error {
	if _, err := os.Stat(dotEnvFile); err == nil {
		if err := godotenv.Load(dotEnvFile); err != nil {
			return fmt.Errorf("loading %s: %w", dotEnvFile, err)
		}
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return fmt.Errorf("error processing environment: %w", err)
	}
	return nil
}
