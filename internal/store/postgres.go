package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-intake/internal/db"
	"github.com/sells-group/opportunity-intake/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool), nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: func() time.Time { return time.Now().UTC() }}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS opportunities (
	id               TEXT PRIMARY KEY,
	url              TEXT NOT NULL,
	company_name     TEXT NOT NULL,
	job_title        TEXT NOT NULL,
	opportunity_type TEXT NOT NULL,
	role_type        TEXT,
	relevant_majors  JSONB,
	deadline         DATE,
	requirements     TEXT,
	location         TEXT,
	description      TEXT,
	status           TEXT NOT NULL DEFAULT 'active',
	submitted_by     TEXT NOT NULL DEFAULT '',
	scrape_method    TEXT NOT NULL DEFAULT '',
	raw_extraction   JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT opportunities_url_key UNIQUE (url)
);

CREATE INDEX IF NOT EXISTS idx_opportunities_status ON opportunities(status);
CREATE INDEX IF NOT EXISTS idx_opportunities_deadline ON opportunities(deadline) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_opportunities_created_at ON opportunities(created_at DESC);
`

const pgSelectColumns = `id, url, company_name, job_title, opportunity_type, role_type, relevant_majors,
	deadline::text, requirements, location, description, status, submitted_by, scrape_method,
	raw_extraction, created_at, updated_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
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

func (s *PostgresStore) GetOpportunityByURL(ctx context.Context, url string) (*model.Opportunity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgSelectColumns+` FROM opportunities WHERE url = $1`, url)
	o, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get opportunity by url %s", url)
	}
	return o, nil
}

func (s *PostgresStore) GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgSelectColumns+` FROM opportunities WHERE id = $1`, id)
	o, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get opportunity %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get opportunity %s", id)
	}
	return o, nil
}

func (s *PostgresStore) InsertOpportunity(ctx context.Context, o *model.Opportunity) error {
	majors, raw, err := prepareInsert(o, uuid.NewString, s.now())
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO opportunities (id, url, company_name, job_title, opportunity_type, role_type,
			relevant_majors, deadline, requirements, location, description, status, submitted_by,
			scrape_method, raw_extraction, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		o.ID, o.URL, o.CompanyName, o.JobTitle, string(o.OpportunityType), o.RoleType,
		majors, o.Deadline, o.Requirements, o.Location, o.Description, string(o.Status), o.SubmittedBy,
		o.ScrapeMethod, raw, o.CreatedAt, o.UpdatedAt,
	)
	if constraint, dup := db.IsUniqueViolation(err); dup {
		zap.L().Debug("postgres: unique violation", zap.String("constraint", constraint), zap.String("url", o.URL))
		return eris.Wrapf(ErrDuplicate, "postgres: insert opportunity %s", o.URL)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: insert opportunity %s", o.URL)
	}
	return nil
}

func (s *PostgresStore) ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]model.Opportunity, error) {
	query := `SELECT ` + pgSelectColumns + ` FROM opportunities`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, string(filter.Status), filter.limit(), filter.offset())
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, filter.limit(), filter.offset())
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list opportunities")
	}
	defer rows.Close()

	var out []model.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan opportunity")
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate opportunities")
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status model.Status) error {
	if !status.Valid() {
		return eris.Errorf("postgres: invalid status %q", status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), s.now(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: set status %s", id)
	}
	return nil
}

func (s *PostgresStore) ExpirePastDeadline(ctx context.Context, today time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET status = $1, updated_at = $2
		WHERE status = $3 AND deadline IS NOT NULL AND deadline < $4::date`,
		string(model.StatusExpired), s.now(), string(model.StatusActive), today.Format(model.DateLayout),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: expire past deadline")
	}
	return tag.RowsAffected(), nil
}
