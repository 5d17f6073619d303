// Package config resolves runtime configuration. Flags are bound to viper
// keys in main; environment variables override defaults and flags fill in
// the rest.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Version is the release version, set at build time via ldflags.
var Version = "dev"

// Config holds the resolved configuration for every backend. Each subcommand
// reads only the fields it needs.
type Config struct {
	// MotherDuck
	MotherDuckToken    string
	MotherDuckDatabase string
	AllowedDatasets    string
	MaxRetries         int
	RetryDelay         time.Duration
	QueryTimeout       time.Duration

	// AACT
	AACTUser     string
	AACTPassword string

	// BigQuery
	GCPProject      string
	CredentialsFile string

	// Shared
	HistoryDB  string
	SchemaFile string
}

// Load reads all configuration values from viper.
func Load() Config {
	return Config{
		MotherDuckToken:    viper.GetString("motherduck_token"),
		MotherDuckDatabase: viper.GetString("motherduck_database"),
		AllowedDatasets:    viper.GetString("allowed_datasets"),
		MaxRetries:         viper.GetInt("max_retries"),
		RetryDelay:         viper.GetDuration("retry_delay"),
		QueryTimeout:       viper.GetDuration("query_timeout"),
		AACTUser:           viper.GetString("aact_user"),
		AACTPassword:       viper.GetString("aact_password"),
		GCPProject:         viper.GetString("gcp_project"),
		CredentialsFile:    viper.GetString("credentials_file"),
		HistoryDB:          viper.GetString("history_db"),
		SchemaFile:         viper.GetString("schema_file"),
	}
}
