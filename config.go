package formedit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TransportKind selects the backing store of a collection transport.
type TransportKind string

const (
	TransportHTTP     TransportKind = "http"
	TransportPostgres TransportKind = "postgres"
	TransportSQLite   TransportKind = "sqlite"
	TransportS3       TransportKind = "s3"
	TransportMemory   TransportKind = "memory"
)

// Config consolidates editor settings
type Config struct {
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Mapping   MappingConfig   `json:"mapping" yaml:"mapping"`
	Inference InferenceConfig `json:"inference" yaml:"inference"`
	Editor    EditorConfig    `json:"editor" yaml:"editor"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// TransportConfig selects and configures the collection transport.
type TransportConfig struct {
	Kind     TransportKind  `json:"kind" yaml:"kind"`
	HTTP     HTTPConfig     `json:"http" yaml:"http"`
	Postgres DatabaseConfig `json:"postgres" yaml:"postgres"`
	SQLite   SQLiteConfig   `json:"sqlite" yaml:"sqlite"`
	S3       S3Config       `json:"s3" yaml:"s3"`
	Breaker  BreakerConfig  `json:"breaker" yaml:"breaker"`
}

// HTTPConfig configures the REST transport.
type HTTPConfig struct {
	BaseURL string            `json:"baseUrl" yaml:"baseUrl"`
	Timeout time.Duration     `json:"timeout" yaml:"timeout"`
	Headers map[string]string `json:"headers" yaml:"headers"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Database        string        `json:"database" yaml:"database"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"password" yaml:"password"`
	SSLMode         string        `json:"sslMode" yaml:"sslMode"`
	MaxConnections  int           `json:"maxConnections" yaml:"maxConnections"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime" yaml:"connMaxIdleTime"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	Table           string        `json:"table" yaml:"table"`
	UseIAM          bool          `json:"useIam" yaml:"useIam"`
	Region          string        `json:"region" yaml:"region"`
}

// SQLiteConfig configures the local SQLite transport.
type SQLiteConfig struct {
	Path  string `json:"path" yaml:"path"`
	Table string `json:"table" yaml:"table"`
}

// S3Config configures the object-storage transport.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Prefix       string `json:"prefix" yaml:"prefix"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	AccessKey    string `json:"accessKey" yaml:"accessKey"`
	SecretKey    string `json:"secretKey" yaml:"secretKey"`
	UsePathStyle bool   `json:"usePathStyle" yaml:"usePathStyle"`
}

// BreakerConfig configures the circuit breaker placed in front of the transport.
type BreakerConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Threshold    int           `json:"threshold" yaml:"threshold"`
	Window       time.Duration `json:"window" yaml:"window"`
	OpenDuration time.Duration `json:"openDuration" yaml:"openDuration"`
}

// MappingConfig holds the static key-mapping tables. Each table maps wire keys
// to canonical keys; Base applies to every collection and Collections override it.
type MappingConfig struct {
	Base        map[string]string            `json:"base" yaml:"base"`
	Collections map[string]map[string]string `json:"collections" yaml:"collections"`
	Endpoints   []string                     `json:"endpoints" yaml:"endpoints"`
}

// InferenceConfig tunes field-rule inference.
type InferenceConfig struct {
	EnumVocabulary    []string `json:"enumVocabulary" yaml:"enumVocabulary"`
	SelectMinDistinct int      `json:"selectMinDistinct" yaml:"selectMinDistinct"`
	SelectMaxDistinct int      `json:"selectMaxDistinct" yaml:"selectMaxDistinct"`
	SelectMaxLength   int      `json:"selectMaxLength" yaml:"selectMaxLength"`
	TextareaMinLength int      `json:"textareaMinLength" yaml:"textareaMinLength"`
}

// EditorConfig contains session behaviour settings
type EditorConfig struct {
	DraftFallbackKeys []string `json:"draftFallbackKeys" yaml:"draftFallbackKeys"`
	ReloadAfterWrite  bool     `json:"reloadAfterWrite" yaml:"reloadAfterWrite"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Format      string `json:"format" yaml:"format"`
	Development bool   `json:"development" yaml:"development"`
}

// DefaultMappingConfig returns the built-in collection tables.
func DefaultMappingConfig() MappingConfig {
	item := func(extra map[string]string) map[string]string {
		m := map[string]string{
			"itemName":     "name",
			"itemCreated":  "created",
			"itemUpdated":  "updated",
			"itemAuthor":   "author",
			"itemModified": "modified",
			"itemType":     "type",
		}
		for k, v := range extra {
			m[k] = v
		}
		return m
	}

	apiRegistration := item(nil)
	delete(apiRegistration, "itemModified")
	apiRegistration["itemModifiedBy"] = "modified"

	return MappingConfig{
		Base: map[string]string{
			"intro": "description",
		},
		Collections: map[string]map[string]string{
			"manage":           item(nil),
			"api-registration": apiRegistration,
			"audit":            {},
			"credentials":      {},
			"faqs":             {},
			"option-set":       {},
			"option-types":     {},
			"scope-type":       {},
			"servers":          item(map[string]string{"itemOS": "os", "itemStatus": "status"}),
			"server-types":     item(map[string]string{"itemOS": "os", "itemStatus": "status"}),
			"variables":        {},
			"settings":         {},
		},
		Endpoints: []string{
			"manage",
			"api-registration",
			"audit",
			"credentials",
			"faqs",
			"option-set",
			"option-types",
			"scope-type",
			"server-types",
			"servers",
			"variables",
			"settings",
		},
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Kind: TransportHTTP,
			HTTP: HTTPConfig{
				BaseURL: "https://67d944ca00348dd3e2aa65f4.mockapi.io/",
				Timeout: 15 * time.Second,
				Headers: map[string]string{"Content-Type": "application/json"},
			},
			Postgres: DatabaseConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "formedit",
				Username:        "postgres",
				SSLMode:         "disable",
				MaxConnections:  10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 30 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
				Timeout:         10 * time.Second,
				Table:           "formedit_records",
			},
			SQLite: SQLiteConfig{
				Path:  "formedit.db",
				Table: "formedit_records",
			},
			S3: S3Config{
				Prefix: "collections/",
			},
			Breaker: BreakerConfig{
				Enabled:      true,
				Threshold:    5,
				Window:       30 * time.Second,
				OpenDuration: 15 * time.Second,
			},
		},
		Mapping: DefaultMappingConfig(),
		Inference: InferenceConfig{
			EnumVocabulary:    []string{"host", "ip", "url", "file", "service"},
			SelectMinDistinct: 2,
			SelectMaxDistinct: 10,
			SelectMaxLength:   20,
			TextareaMinLength: 100,
		},
		Editor: EditorConfig{
			DraftFallbackKeys: []string{"id", "name", "description", "created", "updated"},
			ReloadAfterWrite:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads a YAML file over the defaults. Mapping tables in the file
// are merged over the built-in ones.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportHTTP:
		if c.Transport.HTTP.BaseURL == "" {
			return &ConfigError{Field: "transport.http.baseUrl", Message: "is required"}
		}
	case TransportPostgres:
		if c.Transport.Postgres.Host == "" {
			return &ConfigError{Field: "transport.postgres.host", Message: "is required"}
		}
		if c.Transport.Postgres.Port <= 0 || c.Transport.Postgres.Port > 65535 {
			return &ConfigError{Field: "transport.postgres.port", Message: "must be a valid TCP port"}
		}
		if c.Transport.Postgres.MaxConnections <= 0 {
			return &ConfigError{Field: "transport.postgres.maxConnections", Message: "must be greater than 0"}
		}
		if c.Transport.Postgres.Table == "" {
			return &ConfigError{Field: "transport.postgres.table", Message: "is required"}
		}
	case TransportSQLite:
		if c.Transport.SQLite.Path == "" {
			return &ConfigError{Field: "transport.sqlite.path", Message: "is required"}
		}
		if c.Transport.SQLite.Table == "" {
			return &ConfigError{Field: "transport.sqlite.table", Message: "is required"}
		}
	case TransportS3:
		if c.Transport.S3.Bucket == "" {
			return &ConfigError{Field: "transport.s3.bucket", Message: "is required"}
		}
		if (c.Transport.S3.AccessKey == "") != (c.Transport.S3.SecretKey == "") {
			return &ConfigError{Field: "transport.s3.accessKey", Message: "accessKey and secretKey must be set together"}
		}
	case TransportMemory:
	default:
		return &ConfigError{Field: "transport.kind", Message: fmt.Sprintf("unsupported transport %q", c.Transport.Kind)}
	}

	if c.Transport.Breaker.Enabled && c.Transport.Breaker.Threshold <= 0 {
		return &ConfigError{Field: "transport.breaker.threshold", Message: "must be greater than 0"}
	}

	if c.Inference.SelectMinDistinct < 1 {
		return &ConfigError{Field: "inference.selectMinDistinct", Message: "must be at least 1"}
	}
	if c.Inference.SelectMaxDistinct < c.Inference.SelectMinDistinct {
		return &ConfigError{Field: "inference.selectMaxDistinct", Message: "must be greater than or equal to selectMinDistinct"}
	}
	if c.Inference.SelectMaxLength <= 0 {
		return &ConfigError{Field: "inference.selectMaxLength", Message: "must be greater than 0"}
	}
	if c.Inference.TextareaMinLength <= 0 {
		return &ConfigError{Field: "inference.textareaMinLength", Message: "must be greater than 0"}
	}

	if len(c.Editor.DraftFallbackKeys) == 0 {
		return &ConfigError{Field: "editor.draftFallbackKeys", Message: "must not be empty"}
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be json or console"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
