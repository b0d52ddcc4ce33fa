package config

import (
	"encoding/json"
	"os"
)

// DBConfig holds the database connection parameters.
type DBConfig struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Port     int    `json:"port"`
	SSLMode  string `json:"sslmode"`
	TimeZone string `json:"timezone"`
}

// LoggerConfig holds the logging configuration.
type LoggerConfig struct {
	Level      string `json:"level"`  // e.g., "debug", "info", "warn", "error"
	Format     string `json:"format"` // "text" or "json"
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // megabytes
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

// AuthConfig holds token issuance and API-key parameters.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	// TokenTTLSeconds bounds how long a token stays fresh after its
	// issued-at instant; rotation re-issues well inside this window.
	TokenTTLSeconds int      `json:"token_ttl_seconds"`
	APIKeys         []string `json:"api_keys"`
	// OAuthMode selects how identity tokens are verified. "claims"
	// trusts the token's claims without checking its signature and is
	// only safe behind a gateway that verifies tokens upstream.
	OAuthMode string `json:"oauth_mode"`
}

// ShareConfig holds the at-rest encryption key for key-share material.
type ShareConfig struct {
	EncryptionKey string `json:"encryption_key"` // 32 bytes, hex
}

// CommitRevealConfig holds the key-share-node handshake parameters.
type CommitRevealConfig struct {
	SessionTTLSeconds int    `json:"session_ttl_seconds"`
	NodeKeyFile       string `json:"node_key_file"` // ed25519 seed, created if absent
}

// SessionConfig holds TSS session lifecycle parameters.
type SessionConfig struct {
	TTLSeconds int `json:"ttl_seconds"`
}

// Config holds the application's configuration values.
type Config struct {
	ServerPort   string             `json:"server_port"`
	Database     DBConfig           `json:"database"`
	Logger       LoggerConfig       `json:"logger"`
	Auth         AuthConfig         `json:"auth"`
	Share        ShareConfig        `json:"share"`
	CommitReveal CommitRevealConfig `json:"commit_reveal"`
	Session      SessionConfig      `json:"session"`
}

// LoadConfig reads the configuration from a file and returns a Config struct.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	config := &Config{}
	err = decoder.Decode(config)
	if err != nil {
		return nil, err
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.ServerPort == "" {
		c.ServerPort = ":8080"
	}
	if c.Auth.TokenTTLSeconds == 0 {
		c.Auth.TokenTTLSeconds = 300
	}
	if c.Auth.OAuthMode == "" {
		c.Auth.OAuthMode = "claims"
	}
	if c.CommitReveal.SessionTTLSeconds == 0 {
		c.CommitReveal.SessionTTLSeconds = 120
	}
	if c.Session.TTLSeconds == 0 {
		c.Session.TTLSeconds = 3600
	}
}
