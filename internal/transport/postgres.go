package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/formedit"
	"go.uber.org/zap"
)

type recordPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Postgres stores every collection in one table, one row per record. The
// record body is a json column so the key order survives the round trip.
type Postgres struct {
	pool  recordPool
	table string
}

// NewPostgres creates a Postgres transport over pool.
func NewPostgres(pool recordPool, table string) *Postgres {
	return &Postgres{pool: pool, table: table}
}

func (p *Postgres) tableName() string {
	return pgx.Identifier{p.table}.Sanitize()
}

// EnsureSchema creates the record table when it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSON NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
)`, p.tableName())
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create record table: %w", err)
	}
	return nil
}

// Ping checks the connection with a round trip.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (p *Postgres) FetchCollection(ctx context.Context, name string) (*formedit.CollectionPage, error) {
	query := fmt.Sprintf(`SELECT data::text FROM %s WHERE collection = $1 ORDER BY created_at, id`, p.tableName())
	rows, err := p.pool.Query(ctx, query, name)
	if err != nil {
		return nil, formedit.NewTransportError(name, "query collection", err)
	}
	defer rows.Close()

	page := &formedit.CollectionPage{Meta: formedit.NewRecord(), Items: []formedit.Record{}}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, formedit.NewTransportError(name, "scan record", err)
		}
		var rec formedit.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, formedit.NewEditorError(formedit.ErrorTypeTransport, formedit.ErrCodeInvalidPayload, "stored record is not readable").
				WithRecord(name, "").WithCause(err)
		}
		page.Items = append(page.Items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, formedit.NewTransportError(name, "iterate records", err)
	}
	return page, nil
}

func (p *Postgres) CreateRecord(ctx context.Context, name string, raw formedit.Record) (formedit.Record, error) {
	created := withID(raw, newRecordID())
	data, err := json.Marshal(created)
	if err != nil {
		return formedit.Record{}, formedit.NewInternalError("encode record", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (collection, id, data) VALUES ($1, $2, $3::json)`, p.tableName())
	if _, err := p.pool.Exec(ctx, query, name, created.ID(), string(data)); err != nil {
		return formedit.Record{}, formedit.NewTransportError(name, "insert record", err)
	}
	return created, nil
}

func (p *Postgres) UpdateRecord(ctx context.Context, name, id string, raw formedit.Record) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return formedit.NewTransportError(name, "begin transaction", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	selectQuery := fmt.Sprintf(`SELECT data::text FROM %s WHERE collection = $1 AND id = $2 FOR UPDATE`, p.tableName())
	var data string
	if err := tx.QueryRow(ctx, selectQuery, name, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return formedit.NewRecordNotFoundError(name, id)
		}
		return formedit.NewTransportError(name, "read record", err)
	}

	var current formedit.Record
	if err := json.Unmarshal([]byte(data), &current); err != nil {
		return formedit.NewEditorError(formedit.ErrorTypeTransport, formedit.ErrCodeInvalidPayload, "stored record is not readable").
			WithRecord(name, id).WithCause(err)
	}
	for _, k := range raw.Keys() {
		if k == formedit.IDKey {
			continue
		}
		current.Set(k, raw.Value(k))
	}
	merged, err := json.Marshal(current)
	if err != nil {
		return formedit.NewInternalError("encode record", err)
	}

	updateQuery := fmt.Sprintf(`UPDATE %s SET data = $3::json, updated_at = now() WHERE collection = $1 AND id = $2`, p.tableName())
	if _, err := tx.Exec(ctx, updateQuery, name, id, string(merged)); err != nil {
		return formedit.NewTransportError(name, "update record", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return formedit.NewTransportError(name, "commit transaction", err)
	}
	return nil
}

func (p *Postgres) DeleteRecord(ctx context.Context, name, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE collection = $1 AND id = $2`, p.tableName())
	tag, err := p.pool.Exec(ctx, query, name, id)
	if err != nil {
		return formedit.NewTransportError(name, "delete record", err)
	}
	if tag.RowsAffected() == 0 {
		return formedit.NewRecordNotFoundError(name, id)
	}
	return nil
}

// NewPostgresPool creates a connection pool from cfg. With UseIAM the password
// is replaced by a DSQL auth token generated from the default AWS credentials.
func NewPostgresPool(ctx context.Context, cfg formedit.DatabaseConfig) (*pgxpool.Pool, error) {
	password := cfg.Password
	if cfg.UseIAM {
		endpoint := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		region := cfg.Region
		if region == "" {
			region = awsCfg.Region
		}
		token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, region, awsCfg.Credentials)
		if err != nil {
			zap.S().Warnw("failed to generate IAM auth token; falling back to configured password", "error", err)
		} else {
			password = token
			zap.S().Infow("generated IAM auth token for Postgres connection", "endpoint", endpoint)
		}
	}

	connURL := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.SSLMode != "" {
		connURL.RawQuery = url.Values{"sslmode": []string{cfg.SSLMode}}.Encode()
	}
	poolConfig, err := pgxpool.ParseConfig(connURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.Timeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
