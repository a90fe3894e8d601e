package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

type PostgresConfig struct {
	DSN     string        `envconfig:"DSN" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

// runRow is the skill_runs table. Steps are stored as jsonb.
type runRow struct {
	bun.BaseModel `bun:"table:skill_runs,alias:r"`

	ID         string       `bun:"id,pk"`
	Skill      string       `bun:"skill,notnull"`
	ConfigPath string       `bun:"config_path"`
	Outcome    string       `bun:"outcome"`
	Error      string       `bun:"error"`
	Steps      []StepRecord `bun:"steps,type:jsonb"`
	StartedAt  time.Time    `bun:"started_at,notnull"`
	FinishedAt time.Time    `bun:"finished_at,nullzero"`
	UpdatedAt  time.Time    `bun:"updated_at,notnull"`
}

func toRow(rec *RunRecord) *runRow {
	return &runRow{
		ID:         rec.ID,
		Skill:      rec.Skill,
		ConfigPath: rec.ConfigPath,
		Outcome:    string(rec.Outcome),
		Error:      rec.Error,
		Steps:      rec.Steps,
		StartedAt:  rec.StartedAt.UTC(),
		FinishedAt: rec.FinishedAt.UTC(),
		UpdatedAt:  rec.UpdatedAt.UTC(),
	}
}

func (r *runRow) record() *RunRecord {
	return &RunRecord{
		ID:         r.ID,
		Skill:      r.Skill,
		ConfigPath: r.ConfigPath,
		Outcome:    contractx.Outcome(r.Outcome),
		Error:      r.Error,
		Steps:      r.Steps,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// PostgresStore persists RunRecord rows through bun.
type PostgresStore struct {
	db *bun.DB
}

// NewPostgresStore opens a lazy connection pool; nothing is dialed until the
// first query.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("invalid postgres dsn scheme %q", u.Scheme)
	}

	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.Timeout > 0 {
		opts = append(opts, pgdriver.WithTimeout(cfg.Timeout))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	return NewPostgresStoreFromDB(bun.NewDB(sqldb, pgdialect.New())), nil
}

func NewPostgresStoreFromDB(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the table when it does not exist yet.
func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.createTableQuery().Exec(ctx); err != nil {
		return fmt.Errorf("create skill_runs table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, runID string) (*RunRecord, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, ErrInvalidRunID
	}
	row := new(runRow)
	if err := s.db.NewSelect().Model(row).Where("r.id = ?", runID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("select run record: %w", err)
	}
	return row.record(), nil
}

func (s *PostgresStore) Save(ctx context.Context, rec *RunRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	if _, err := s.upsertQuery(toRow(rec)).Exec(ctx); err != nil {
		return fmt.Errorf("upsert run record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, runID string) error {
	if strings.TrimSpace(runID) == "" {
		return ErrInvalidRunID
	}
	if _, err := s.db.NewDelete().Model((*runRow)(nil)).Where("id = ?", runID).Exec(ctx); err != nil {
		return fmt.Errorf("delete run record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) createTableQuery() *bun.CreateTableQuery {
	return s.db.NewCreateTable().Model((*runRow)(nil)).IfNotExists()
}

func (s *PostgresStore) upsertQuery(row *runRow) *bun.InsertQuery {
	return s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("outcome = EXCLUDED.outcome").
		Set("error = EXCLUDED.error").
		Set("steps = EXCLUDED.steps").
		Set("finished_at = EXCLUDED.finished_at").
		Set("updated_at = EXCLUDED.updated_at")
}
