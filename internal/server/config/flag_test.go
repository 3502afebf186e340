package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-a", "127.0.0.1:9090", "-d", "db", "-r", "redis://r", "-s", "secret", "-t", "30",
				"-l", "http://node", "-p", "SP1.poap", "-v", "SP1.voting", "-i", "15", "-n", "redis",
			},
			expected: &Config{
				HTTPAddr:          "127.0.0.1:9090",
				DatabaseDSN:       "db",
				RedisURL:          "redis://r",
				SecretKey:         "secret",
				TokenValidity:     30 * time.Minute,
				LedgerAPIURL:      "http://node",
				POAPContract:      "SP1.poap",
				VotingContract:    "SP1.voting",
				ReconcileInterval: 15 * time.Second,
				NotifyBackend:     "redis",
			},
		},
		{
			name: "foreign flags ignored",
			args: []string{"cmd", "-x", "1", "--other=2", "-a", ":1"},
			expected: &Config{
				HTTPAddr: ":1",
			},
		},
		{
			name:        "bad int",
			args:        []string{"cmd", "-t", "soon"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origArgs := os.Args
			t.Cleanup(func() { os.Args = origArgs })
			os.Args = tt.args

			config := &Config{}

			if tt.expectPanic {
				assert.Panics(t, func() { parseFlags(config) })
				return
			}

			parseFlags(config)
			assert.Equal(t, tt.expected, config)
		})
	}
}
