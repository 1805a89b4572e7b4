package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/opportunity-intake/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS opportunities (
	id               TEXT PRIMARY KEY,
	url              TEXT NOT NULL UNIQUE,
	company_name     TEXT NOT NULL,
	job_title        TEXT NOT NULL,
	opportunity_type TEXT NOT NULL,
	role_type        TEXT,
	relevant_majors  TEXT,
	deadline         TEXT,
	requirements     TEXT,
	location         TEXT,
	description      TEXT,
	status           TEXT NOT NULL DEFAULT 'active',
	submitted_by     TEXT NOT NULL DEFAULT '',
	scrape_method    TEXT NOT NULL DEFAULT '',
	raw_extraction   TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_opportunities_status ON opportunities(status);
CREATE INDEX IF NOT EXISTS idx_opportunities_deadline ON opportunities(deadline);
CREATE INDEX IF NOT EXISTS idx_opportunities_created_at ON opportunities(created_at);
`

const sqliteSelectColumns = `id, url, company_name, job_title, opportunity_type, role_type, relevant_majors,
	deadline, requirements, location, description, status, submitted_by, scrape_method,
	raw_extraction, created_at, updated_at`

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

func (s *SQLiteStore) GetOpportunityByURL(ctx context.Context, url string) (*model.Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteSelectColumns+` FROM opportunities WHERE url = ?`, url)
	o, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get opportunity by url %s", url)
	}
	return o, nil
}

func (s *SQLiteStore) GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteSelectColumns+` FROM opportunities WHERE id = ?`, id)
	o, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get opportunity %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get opportunity %s", id)
	}
	return o, nil
}

func (s *SQLiteStore) InsertOpportunity(ctx context.Context, o *model.Opportunity) error {
	majors, raw, err := prepareInsert(o, uuid.NewString, s.now())
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO opportunities (id, url, company_name, job_title, opportunity_type, role_type,
			relevant_majors, deadline, requirements, location, description, status, submitted_by,
			scrape_method, raw_extraction, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.URL, o.CompanyName, o.JobTitle, string(o.OpportunityType), o.RoleType,
		nullableText(majors), o.Deadline, o.Requirements, o.Location, o.Description, string(o.Status),
		o.SubmittedBy, o.ScrapeMethod, nullableText(raw), o.CreatedAt, o.UpdatedAt,
	)
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrDuplicate, "sqlite: insert opportunity %s", o.URL)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert opportunity %s", o.URL)
	}
	return nil
}

func (s *SQLiteStore) ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]model.Opportunity, error) {
	query := `SELECT ` + sqliteSelectColumns + ` FROM opportunities`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), filter.offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list opportunities")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan opportunity")
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate opportunities")
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status model.Status) error {
	if !status.Valid() {
		return eris.Errorf("sqlite: invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE opportunities SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: set status %s", id)
	}
	return nil
}

func (s *SQLiteStore) ExpirePastDeadline(ctx context.Context, today time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE opportunities SET status = ?, updated_at = ?
		WHERE status = ? AND deadline IS NOT NULL AND deadline < ?`,
		string(model.StatusExpired), s.now(), string(model.StatusActive), today.Format(model.DateLayout),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: expire past deadline")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

// nullableText stores JSON columns as TEXT, NULL when absent.
func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
