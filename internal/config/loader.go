package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvFile names the variable that points at a YAML overlay file.
const EnvFile = "TABULAR_CONFIG"

// lookupFunc returns the raw value for an environment key.
type lookupFunc func(key string) (string, bool)

// Load builds a Config from the environment. When overlayPath (or
// $TABULAR_CONFIG) names a YAML file, its top-level keys fill in any
// variable the environment leaves unset. Defaults apply last.
func Load(overlayPath string) (*Config, error) {
	if overlayPath == "" {
		overlayPath = os.Getenv(EnvFile)
	}

	overlay := map[string]string{}
	if overlayPath != "" {
		var err error
		overlay, err = readOverlay(overlayPath)
		if err != nil {
			return nil, fmt.Errorf("config overlay: %w", err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v := os.Getenv(key); v != "" {
			return v, true
		}
		v, ok := overlay[key]
		return v, ok && v != ""
	}

	cfg := &Config{}
	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// readOverlay reads a flat YAML mapping of variable names to scalars or
// string lists.
func readOverlay(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(x))
			for _, p := range x {
				parts = append(parts, fmt.Sprint(p))
			}
			out[k] = strings.Join(parts, ",")
		case map[string]any:
			return nil, fmt.Errorf("%s: key %s must be a scalar or a list", path, k)
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out, nil
}

// loadStruct recursively populates struct fields through lookup.
func loadStruct(v reflect.Value, lookup lookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value, ok := lookup(envName)
		if !ok {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				value, ok = lookup(alt)
			}
		}
		if !ok {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}
	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// Validate checks the configuration and reports every failure at once.
func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Input.Encoding) {
	case "latin1", "latin-1", "iso-8859-1", "utf-8", "utf8":
	default:
		errs = append(errs, fmt.Sprintf("SOURCE_ENCODING (%q) must be latin1 or utf-8", c.Input.Encoding))
	}

	if c.Fetch.Timeout <= 0 {
		errs = append(errs, "HTTP_TIMEOUT must be positive")
	}
	if c.Fetch.Retries < 0 {
		errs = append(errs, "HTTP_RETRIES must be non-negative")
	}
	if c.Fetch.Concurrency <= 0 {
		errs = append(errs, "FETCH_CONCURRENCY must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	switch strings.ToLower(c.Metrics.Backend) {
	case "", "none", "datadog":
	default:
		errs = append(errs, fmt.Sprintf("METRICS_BACKEND (%q) must be none or datadog", c.Metrics.Backend))
	}

	switch strings.ToLower(c.Export.Kind) {
	case "":
	case "sqlite", "postgres", "mssql":
		if c.Export.DSN == "" {
			errs = append(errs, "EXPORT_DSN is required when EXPORT_KIND is set")
		}
		if c.Export.Table == "" {
			errs = append(errs, "EXPORT_TABLE must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("EXPORT_KIND (%q) must be one of: sqlite, postgres, mssql", c.Export.Kind))
	}

	if c.Output.ProvenanceColumn == "" {
		errs = append(errs, "PROVENANCE_COLUMN must not be empty")
	}
	if c.Output.Variable == "" {
		errs = append(errs, "OUTPUT_VARIABLE must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a loggable form of c with secrets masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Input: {JSONURL: %q, JSONPath: %q, Encoding: %q}, ", c.Input.JSONURL, c.Input.JSONPath, c.Input.Encoding)
	fmt.Fprintf(&b, "Fetch: {Timeout: %s, Retries: %d, Concurrency: %d}, ", c.Fetch.Timeout, c.Fetch.Retries, c.Fetch.Concurrency)
	fmt.Fprintf(&b, "S3: {Endpoint: %q, Region: %q, Credentials: %s}, ", c.S3.Endpoint, c.S3.Region, mask(c.S3.SecretAccessKey))
	fmt.Fprintf(&b, "Metrics: {Backend: %q, Job: %q}, ", c.Metrics.Backend, c.Metrics.Job)
	fmt.Fprintf(&b, "Export: {Kind: %q, DSN: %s, Table: %q}", c.Export.Kind, mask(c.Export.DSN), c.Export.Table)
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
