package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shopper-cli/internal/artifact"
	"github.com/sells-group/shopper-cli/internal/db"
	"github.com/sells-group/shopper-cli/internal/decision"
	"github.com/sells-group/shopper-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlInsertArtifact = `INSERT INTO artifacts (id, mode, page_size, product_count, created_at, document) VALUES ($1, $2, $3, $4, $5, $6)`
	sqlGetArtifact    = `SELECT document FROM artifacts WHERE id = $1`
	sqlInsertDecision = `INSERT INTO decisions (id, batch_id, final_choice, provider, model, decided_at, document) VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_artifact": sqlInsertArtifact,
	"get_artifact":    sqlGetArtifact,
	"insert_decision": sqlInsertDecision,
}

// Postgres SQLSTATE codes mapped onto model error kinds.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS artifacts (
	id            TEXT PRIMARY KEY,
	mode          TEXT NOT NULL,
	page_size     INTEGER NOT NULL,
	product_count INTEGER NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	document      JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id           TEXT PRIMARY KEY,
	batch_id     TEXT NOT NULL REFERENCES artifacts(id),
	final_choice TEXT NOT NULL,
	provider     TEXT NOT NULL,
	model        TEXT NOT NULL,
	decided_at   TIMESTAMPTZ NOT NULL,
	document     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS attribution_rows (
	batch_id         TEXT NOT NULL,
	decision_id      TEXT NOT NULL REFERENCES decisions(id),
	product_id       TEXT NOT NULL,
	mode             TEXT NOT NULL,
	provider         TEXT NOT NULL,
	model            TEXT NOT NULL,
	prompt_version   TEXT NOT NULL DEFAULT '',
	decided_at       TIMESTAMPTZ NOT NULL,
	category         TEXT NOT NULL,
	title            TEXT NOT NULL,
	price            DOUBLE PRECISION NOT NULL,
	rating           DOUBLE PRECISION NOT NULL,
	review_count     INTEGER NOT NULL,
	position         INTEGER,
	page             INTEGER,
	tags             TEXT NOT NULL DEFAULT '',
	is_sponsored     BOOLEAN NOT NULL,
	is_best_seller   BOOLEAN NOT NULL,
	is_overall_pick  BOOLEAN NOT NULL,
	in_consideration BOOLEAN NOT NULL,
	chosen           BOOLEAN NOT NULL,
	PRIMARY KEY (decision_id, product_id)
);

CREATE INDEX IF NOT EXISTS idx_artifacts_mode ON artifacts(mode);
CREATE INDEX IF NOT EXISTS idx_artifacts_created_at ON artifacts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_batch_id ON decisions(batch_id);
CREATE INDEX IF NOT EXISTS idx_attribution_rows_batch_id ON attribution_rows(batch_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveArtifact(ctx context.Context, a model.BatchArtifact) error {
	doc, err := artifact.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, sqlInsertArtifact,
		a.ID, string(a.Mode), a.PageSize, len(a.Products), a.CreatedAt.UTC(), doc,
	)
	if err != nil {
		return eris.Wrapf(classifyPostgres(err), "postgres: insert artifact %s", a.ID)
	}
	return nil
}

func (s *PostgresStore) GetArtifact(ctx context.Context, id string) (model.BatchArtifact, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, sqlGetArtifact, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BatchArtifact{}, eris.Wrapf(model.ErrNotFound, "postgres: artifact %s", id)
	}
	if err != nil {
		return model.BatchArtifact{}, eris.Wrapf(err, "postgres: get artifact %s", id)
	}
	return artifact.Unmarshal(doc)
}

func (s *PostgresStore) ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]ArtifactInfo, error) {
	query := `SELECT id, mode, page_size, product_count, created_at FROM artifacts WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Mode != "" {
		query += fmt.Sprintf(` AND mode = $%d`, argIdx)
		args = append(args, string(filter.Mode))
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list artifacts")
	}
	defer rows.Close()

	var out []ArtifactInfo
	for rows.Next() {
		var info ArtifactInfo
		var mode string
		if err := rows.Scan(&info.ID, &mode, &info.PageSize, &info.ProductCount, &info.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan artifact")
		}
		info.Mode = model.PositionMode(mode)
		info.CreatedAt = info.CreatedAt.UTC()
		out = append(out, info)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list artifacts iterate")
}

func (s *PostgresStore) SaveDecision(ctx context.Context, rec model.DecisionRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal decision")
	}
	_, err = s.pool.Exec(ctx, sqlInsertDecision,
		rec.ID, rec.BatchID, rec.FinalChoice, rec.Provenance.Provider, rec.Provenance.Model,
		rec.Provenance.CreatedAt.UTC(), doc,
	)
	if err != nil {
		return eris.Wrapf(classifyPostgres(err), "postgres: insert decision %s for batch %s", rec.ID, rec.BatchID)
	}
	return nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, batchID string) ([]model.DecisionRecord, error) {
	query := `SELECT document FROM decisions`
	args := []any{}
	if batchID != "" {
		query += ` WHERE batch_id = $1`
		args = append(args, batchID)
	}
	query += ` ORDER BY decided_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var out []model.DecisionRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		rec, err := decision.Parse(doc)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: decode decision")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

func (s *PostgresStore) ReplaceAttribution(ctx context.Context, rows []model.AttributionRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = attributionValues(r)
	}
	n, err := db.Replace(ctx, s.pool, db.ReplaceConfig{
		Table:     "attribution_rows",
		Columns:   attributionColumns,
		KeyColumn: "decision_id",
		Keys:      decisionIDs(rows),
	}, values)
	if err != nil {
		return 0, eris.Wrap(classifyPostgres(err), "postgres: replace attribution")
	}
	return n, nil
}

// classifyPostgres maps constraint violations onto the model's error kinds.
func classifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return errors.Join(model.ErrDuplicate, err)
	case pgForeignKeyViolation:
		return errors.Join(model.ErrReferentialIntegrity, err)
	}
	return err
}
