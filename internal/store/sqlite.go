package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/shopper-cli/internal/artifact"
	"github.com/sells-group/shopper-cli/internal/decision"
	"github.com/sells-group/shopper-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; a single connection keeps foreign_keys on.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS artifacts (
	id            TEXT PRIMARY KEY,
	mode          TEXT NOT NULL,
	page_size     INTEGER NOT NULL,
	product_count INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	document      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id           TEXT PRIMARY KEY,
	batch_id     TEXT NOT NULL REFERENCES artifacts(id),
	final_choice TEXT NOT NULL,
	provider     TEXT NOT NULL,
	model        TEXT NOT NULL,
	decided_at   TEXT NOT NULL,
	document     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attribution_rows (
	batch_id         TEXT NOT NULL,
	decision_id      TEXT NOT NULL REFERENCES decisions(id),
	product_id       TEXT NOT NULL,
	mode             TEXT NOT NULL,
	provider         TEXT NOT NULL,
	model            TEXT NOT NULL,
	prompt_version   TEXT NOT NULL DEFAULT '',
	decided_at       DATETIME NOT NULL,
	category         TEXT NOT NULL,
	title            TEXT NOT NULL,
	price            REAL NOT NULL,
	rating           REAL NOT NULL,
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
CREATE INDEX IF NOT EXISTS idx_artifacts_created_at ON artifacts(created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_batch_id ON decisions(batch_id);
CREATE INDEX IF NOT EXISTS idx_attribution_rows_batch_id ON attribution_rows(batch_id);
`

// sortableTime is lexically ordered for UTC instants.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveArtifact(ctx context.Context, a model.BatchArtifact) error {
	doc, err := artifact.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, mode, page_size, product_count, created_at, document) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Mode), a.PageSize, len(a.Products), a.CreatedAt.UTC().Format(sortableTime), string(doc),
	)
	if err != nil {
		return eris.Wrapf(classifySQLite(err), "sqlite: insert artifact %s", a.ID)
	}
	return nil
}

func (s *SQLiteStore) GetArtifact(ctx context.Context, id string) (model.BatchArtifact, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM artifacts WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return model.BatchArtifact{}, eris.Wrapf(model.ErrNotFound, "sqlite: artifact %s", id)
	}
	if err != nil {
		return model.BatchArtifact{}, eris.Wrapf(err, "sqlite: get artifact %s", id)
	}
	return artifact.Unmarshal([]byte(doc))
}

func (s *SQLiteStore) ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]ArtifactInfo, error) {
	query := `SELECT id, mode, page_size, product_count, created_at FROM artifacts WHERE 1=1`
	var args []any

	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, string(filter.Mode))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list artifacts")
	}
	defer rows.Close()

	var out []ArtifactInfo
	for rows.Next() {
		var info ArtifactInfo
		var created string
		if err := rows.Scan(&info.ID, &info.Mode, &info.PageSize, &info.ProductCount, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan artifact")
		}
		if info.CreatedAt, err = time.Parse(sortableTime, created); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse created_at for %s", info.ID)
		}
		out = append(out, info)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list artifacts iterate")
}

func (s *SQLiteStore) SaveDecision(ctx context.Context, rec model.DecisionRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal decision")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, batch_id, final_choice, provider, model, decided_at, document) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BatchID, rec.FinalChoice, rec.Provenance.Provider, rec.Provenance.Model,
		rec.Provenance.CreatedAt.UTC().Format(sortableTime), string(doc),
	)
	if err != nil {
		return eris.Wrapf(classifySQLite(err), "sqlite: insert decision %s for batch %s", rec.ID, rec.BatchID)
	}
	return nil
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, batchID string) ([]model.DecisionRecord, error) {
	query := `SELECT document FROM decisions`
	var args []any
	if batchID != "" {
		query += ` WHERE batch_id = ?`
		args = append(args, batchID)
	}
	query += ` ORDER BY decided_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close()

	var out []model.DecisionRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		rec, err := decision.Parse([]byte(doc))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: decode decision")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

func (s *SQLiteStore) ReplaceAttribution(ctx context.Context, rows []model.AttributionRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, id := range decisionIDs(rows) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attribution_rows WHERE decision_id = ?`, id); err != nil {
			return 0, eris.Wrapf(err, "sqlite: clear attribution for %s", id)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(attributionColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attribution_rows (`+strings.Join(attributionColumns, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare attribution insert")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, attributionValues(r)...); err != nil {
			return 0, eris.Wrapf(classifySQLite(err), "sqlite: insert attribution %s/%s", r.DecisionID, r.ProductID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit attribution")
	}
	return int64(len(rows)), nil
}

// classifySQLite maps constraint failures onto the model's error kinds.
func classifySQLite(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "PRIMARY KEY constraint failed"):
		return errors.Join(model.ErrDuplicate, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return errors.Join(model.ErrReferentialIntegrity, err)
	}
	return err
}
