package main

import (
	"time"

	"github.com/lychee-technology/formedit"
)

// loadConfig reads FORMEDIT_CONFIG when set, then applies environment overrides.
func loadConfig() (*formedit.Config, error) {
	config := formedit.DefaultConfig()
	if path := getEnv("FORMEDIT_CONFIG", ""); path != "" {
		loaded, err := formedit.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	applyEnv(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *formedit.Config) {
	t := &config.Transport
	t.Kind = formedit.TransportKind(getEnv("TRANSPORT_KIND", string(t.Kind)))
	t.HTTP.BaseURL = getEnv("API_BASE_URL", t.HTTP.BaseURL)
	t.HTTP.Timeout = time.Duration(getEnvInt("API_TIMEOUT_SECONDS", int(t.HTTP.Timeout/time.Second))) * time.Second

	db := &t.Postgres
	db.Host = getEnv("DB_HOST", db.Host)
	db.Port = getEnvInt("DB_PORT", db.Port)
	db.Database = getEnv("DB_NAME", db.Database)
	db.Username = getEnv("DB_USER", db.Username)
	db.Password = getEnv("DB_PASSWORD", db.Password)
	db.SSLMode = getEnv("DB_SSL_MODE", db.SSLMode)
	db.MaxConnections = getEnvInt("DB_MAX_CONNECTIONS", db.MaxConnections)
	db.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", db.MaxIdleConns)
	db.ConnMaxLifetime = time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SECONDS", int(db.ConnMaxLifetime/time.Second))) * time.Second
	db.ConnMaxIdleTime = time.Duration(getEnvInt("DB_CONN_MAX_IDLE_TIME_SECONDS", int(db.ConnMaxIdleTime/time.Second))) * time.Second
	db.Timeout = time.Duration(getEnvInt("DB_TIMEOUT_SECONDS", int(db.Timeout/time.Second))) * time.Second
	db.Table = getEnv("DB_TABLE", db.Table)
	db.UseIAM = getEnv("DB_USE_IAM", "") == "true" || db.UseIAM
	db.Region = getEnv("AWS_REGION", db.Region)

	t.SQLite.Path = getEnv("SQLITE_PATH", t.SQLite.Path)

	t.S3.Bucket = getEnv("S3_BUCKET", t.S3.Bucket)
	t.S3.Prefix = getEnv("S3_PREFIX", t.S3.Prefix)
	t.S3.Region = getEnv("AWS_REGION", t.S3.Region)
	t.S3.Endpoint = getEnv("S3_ENDPOINT", t.S3.Endpoint)
	t.S3.AccessKey = getEnv("S3_ACCESS_KEY", t.S3.AccessKey)
	t.S3.SecretKey = getEnv("S3_SECRET_KEY", t.S3.SecretKey)
	t.S3.UsePathStyle = getEnv("S3_USE_PATH_STYLE", "") == "true" || t.S3.UsePathStyle

	config.Logging.Level = getEnv("LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnv("LOG_FORMAT", config.Logging.Format)
}
