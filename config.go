package queryreader

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	BackendBigQuery = "bigquery"
	BackendAthena   = "athena"
)

// Config describes which remote service to reach and how commands run against it.
type Config struct {
	// Backend is "bigquery" or "athena".
	Backend string `yaml:"backend"`

	// ProjectID is the BigQuery project, or the Athena data catalog.
	ProjectID string `yaml:"project_id"`

	// DatasetID is the BigQuery dataset, or the Athena database.
	DatasetID string `yaml:"dataset_id"`

	// CredentialsFile is a service account key for BigQuery. Empty uses application default credentials.
	CredentialsFile string `yaml:"credentials_file"`

	// Endpoint overrides the service endpoint, mostly for emulators and tests.
	Endpoint string `yaml:"endpoint"`

	// Region, Workgroup and OutputLocation are used by Athena only.
	Region         string `yaml:"region"`
	Workgroup      string `yaml:"workgroup"`
	OutputLocation string `yaml:"output_location"`

	// CommandTimeout in seconds given to new commands. Zero means no timeout.
	CommandTimeout *int `yaml:"command_timeout"`

	// RequestsPerSecond throttles calls to the service. Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	LogLevel string `yaml:"log_level"`
}

// LoadConfig reads a YAML config file, applies QUERYREADER_* environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig decodes YAML config without environment overrides or validation.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"QUERYREADER_BACKEND":          &c.Backend,
		"QUERYREADER_PROJECT_ID":       &c.ProjectID,
		"QUERYREADER_DATASET_ID":       &c.DatasetID,
		"QUERYREADER_CREDENTIALS_FILE": &c.CredentialsFile,
		"QUERYREADER_ENDPOINT":         &c.Endpoint,
		"QUERYREADER_REGION":           &c.Region,
		"QUERYREADER_WORKGROUP":        &c.Workgroup,
		"QUERYREADER_LOG_LEVEL":        &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup("QUERYREADER_COMMAND_TIMEOUT"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse QUERYREADER_COMMAND_TIMEOUT: %w", err)
		}
		c.CommandTimeout = &n
	}
	return nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendBigQuery:
	case BackendAthena:
		if c.Region == "" {
			return fmt.Errorf("region is required for the athena backend")
		}
	default:
		return fmt.Errorf("unknown backend %q, expected %q or %q", c.Backend, BackendBigQuery, BackendAthena)
	}
	if c.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if c.DatasetID == "" {
		return fmt.Errorf("dataset_id is required")
	}
	if c.CommandTimeout != nil && *c.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout must not be negative, got %d", *c.CommandTimeout)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	return nil
}

// CommandTimeoutSeconds returns the configured command timeout or DefaultCommandTimeout.
func (c *Config) CommandTimeoutSeconds() int {
	if c.CommandTimeout == nil {
		return DefaultCommandTimeout
	}
	return *c.CommandTimeout
}

// ConnectionOptions translates the service-independent settings into connection options.
func (c *Config) ConnectionOptions() []ConnectionOption {
	return []ConnectionOption{
		WithCommandTimeout(c.CommandTimeoutSeconds()),
		WithExecutorOptions(WithRateLimit(c.RequestsPerSecond, c.Burst)),
	}
}
