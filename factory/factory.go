package factory

import (
	"context"
	"fmt"

	"github.com/lychee-technology/formedit"
	"github.com/lychee-technology/formedit/internal"
	"github.com/lychee-technology/formedit/internal/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CloseFunc releases the resources held by a transport.
type CloseFunc func()

func noopClose() {}

// Hooks for the remote backends, replaced in tests.
var (
	postgresTransportFactory = openPostgresTransport
	s3TransportFactory       = openS3Transport
)

// NewLogger builds a zap logger from cfg. Format "console" gives the
// human-readable encoder; anything else logs JSON.
func NewLogger(cfg formedit.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if cfg.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		zc.Encoding = "json"
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// NewTransport builds the transport selected by config, wrapped in a circuit
// breaker when one is enabled. The returned CloseFunc is never nil.
//
// Usage:
//
//	config := formedit.DefaultConfig()
//	tr, closeFn, err := factory.NewTransport(ctx, config)
//	if err != nil {
//	    // handle error
//	}
//	defer closeFn()
func NewTransport(ctx context.Context, config *formedit.Config) (formedit.Transport, CloseFunc, error) {
	if config == nil {
		return nil, noopClose, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, noopClose, err
	}

	var (
		tr      formedit.Transport
		closeFn CloseFunc = noopClose
		err     error
	)
	switch config.Transport.Kind {
	case formedit.TransportMemory:
		tr = transport.NewMemory()
	case formedit.TransportHTTP:
		tr = transport.NewHTTP(config.Transport.HTTP, nil)
	case formedit.TransportPostgres:
		tr, closeFn, err = postgresTransportFactory(ctx, config.Transport.Postgres)
	case formedit.TransportSQLite:
		var db *transport.SQLite
		db, err = transport.OpenSQLite(ctx, config.Transport.SQLite)
		if err == nil {
			tr = db
			closeFn = func() {
				if cerr := db.Close(); cerr != nil {
					zap.S().Warnw("failed to close sqlite", "error", cerr)
				}
			}
		}
	case formedit.TransportS3:
		tr, err = s3TransportFactory(ctx, config.Transport.S3)
	default:
		err = fmt.Errorf("unsupported transport %q", config.Transport.Kind)
	}
	if err != nil {
		return nil, noopClose, fmt.Errorf("failed to create %s transport: %w", config.Transport.Kind, err)
	}

	if config.Transport.Breaker.Enabled {
		tr = transport.NewBreaker(tr, config.Transport.Breaker)
	}
	zap.S().Infow("transport ready", "kind", config.Transport.Kind, "breaker", config.Transport.Breaker.Enabled)
	return tr, closeFn, nil
}

// NewEditorWithConfig creates an editing session over tr.
func NewEditorWithConfig(config *formedit.Config, tr formedit.Transport) (formedit.Editor, error) {
	session, err := internal.NewSession(config, tr, nil)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// NewEditor builds the configured transport and an editing session over it.
func NewEditor(ctx context.Context, config *formedit.Config) (formedit.Editor, CloseFunc, error) {
	tr, closeFn, err := NewTransport(ctx, config)
	if err != nil {
		return nil, noopClose, err
	}
	editor, err := NewEditorWithConfig(config, tr)
	if err != nil {
		closeFn()
		return nil, noopClose, err
	}
	return editor, closeFn, nil
}

func openPostgresTransport(ctx context.Context, cfg formedit.DatabaseConfig) (formedit.Transport, CloseFunc, error) {
	pool, err := transport.NewPostgresPool(ctx, cfg)
	if err != nil {
		return nil, noopClose, err
	}
	pg := transport.NewPostgres(pool, cfg.Table)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, noopClose, err
	}
	return pg, pool.Close, nil
}

func openS3Transport(ctx context.Context, cfg formedit.S3Config) (formedit.Transport, error) {
	client, err := transport.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return transport.NewS3(client, cfg), nil
}
