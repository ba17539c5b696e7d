// Package config loads csv2js settings from the environment, an optional
// .env file and an optional YAML overlay, then validates them so a bad
// setting fails before any source is fetched.
package config

import "time"

// Config holds all settings. Every field can be set through the
// environment variable named in its env tag.
type Config struct {
	Input   InputConfig
	Fetch   FetchConfig
	S3      S3Config
	Logging LoggingConfig
	Metrics MetricsConfig
	Export  ExportConfig
	Output  OutputConfig
}

// InputConfig says where the list of sources comes from when no
// arguments are given on the command line.
type InputConfig struct {
	// JSON is an inline input document with a file_relationships list.
	JSON string `env:"INPUT_JSON"`

	// JSONURL is fetched when JSON is empty.
	JSONURL string `env:"INPUT_JSON_URL"`

	// JSONPath is read when both JSON and JSONURL are empty.
	JSONPath string `env:"INPUT_JSON_PATH" default:"/var/input.json"`

	// Encoding of the source bytes: latin1 or utf-8.
	Encoding string `env:"SOURCE_ENCODING" default:"latin1"`
}

// FetchConfig controls remote source retrieval.
type FetchConfig struct {
	Timeout     time.Duration `env:"HTTP_TIMEOUT" default:"30s"`
	Retries     int           `env:"HTTP_RETRIES" default:"2"`
	Concurrency int           `env:"FETCH_CONCURRENCY" default:"4"`
}

// S3Config holds credentials for s3:// sources.
type S3Config struct {
	Endpoint        string `env:"S3_ENDPOINT" default:"s3.amazonaws.com"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID" envAlt:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY" envAlt:"AWS_SECRET_ACCESS_KEY"`
	Region          string `env:"S3_REGION" envAlt:"AWS_REGION" default:"us-east-1"`
	UseSSL          bool   `env:"S3_USE_SSL" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Backend is none or datadog.
	Backend string   `env:"METRICS_BACKEND" default:"none"`
	Tags    []string `env:"METRICS_TAGS"`
	Job     string   `env:"METRICS_JOB" default:"csv2js"`
}

// ExportConfig enables the optional database export of the merged table.
type ExportConfig struct {
	// Kind is empty (no export), sqlite, postgres or mssql.
	Kind  string `env:"EXPORT_KIND"`
	DSN   string `env:"EXPORT_DSN"`
	Table string `env:"EXPORT_TABLE" default:"outside_data"`
}

// OutputConfig shapes the generated artifact.
type OutputConfig struct {
	ProvenanceColumn string `env:"PROVENANCE_COLUMN" default:"Refinery file"`
	Variable         string `env:"OUTPUT_VARIABLE" default:"outside_data"`
}
