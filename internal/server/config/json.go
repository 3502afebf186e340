package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/poapgate/internal/flagx"
	"github.com/dmitrijs2005/poapgate/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations may be written as
// strings ("30s") or integer nanoseconds. Absent keys keep the current value.
type JsonConfig struct {
	HTTPAddr          *string         `json:"http_addr"`
	DatabaseDSN       *string         `json:"database_dsn"`
	RedisURL          *string         `json:"redis_url"`
	SecretKey         *string         `json:"secret_key"`
	TokenValidity     *timex.Duration `json:"token_validity"`
	ChallengeTTL      *timex.Duration `json:"challenge_ttl"`
	LedgerAPIURL      *string         `json:"ledger_api_url"`
	POAPContract      *string         `json:"poap_contract"`
	VotingContract    *string         `json:"voting_contract"`
	LedgerTimeout     *timex.Duration `json:"ledger_timeout"`
	ReconcileInterval *timex.Duration `json:"reconcile_interval"`
	NotifyBackend     *string         `json:"notify_backend"`
	AllowedOrigins    []string        `json:"allowed_origins"`
	S3RootUser        *string         `json:"s3_root_user"`
	S3RootPassword    *string         `json:"s3_root_password"`
	S3Bucket          *string         `json:"s3_bucket"`
	S3Region          *string         `json:"s3_region"`
	S3BaseEndpoint    *string         `json:"s3_base_endpoint"`
	ArtworkPublicURL  *string         `json:"artwork_public_url"`
	MetricsEnabled    *bool           `json:"metrics_enabled"`
	LogLevel          *string         `json:"log_level"`
}

// parseJson loads the file named by -c/-config (or $POAPGATE_CONFIG) into
// config. A missing or malformed file is fatal.
func parseJson(config *Config) {
	if err := loadJSONFile(flagx.JsonConfigFlags(), config); err != nil {
		panic(err)
	}
}

// loadJSONFile overlays the JSON file at path onto config. An empty path is
// a no-op.
func loadJSONFile(path string, config *Config) error {
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.TokenValidity, c.TokenValidity)
	setDuration(&config.ChallengeTTL, c.ChallengeTTL)
	setString(&config.LedgerAPIURL, c.LedgerAPIURL)
	setString(&config.POAPContract, c.POAPContract)
	setString(&config.VotingContract, c.VotingContract)
	setDuration(&config.LedgerTimeout, c.LedgerTimeout)
	setDuration(&config.ReconcileInterval, c.ReconcileInterval)
	setString(&config.NotifyBackend, c.NotifyBackend)
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.ArtworkPublicURL, c.ArtworkPublicURL)
	if c.MetricsEnabled != nil {
		config.MetricsEnabled = *c.MetricsEnabled
	}
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
