package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nao1215/depthcrawl/internal/model"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections.
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime.
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for the startup ping.
	DefaultPingTimeout = 5 * time.Second
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is a Store backed by PostgreSQL. Several crawler processes
// may share one PostgresStore database.
type PostgresStore struct {
	db         *sqlx.DB
	claimLease time.Duration
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing connection. The schema must already exist.
func NewPostgresStore(db *sqlx.DB, opts Options) *PostgresStore {
	return &PostgresStore{db: db, claimLease: opts.claimLease()}
}

// OpenPostgres connects to dsn, verifies the connection, and applies the
// embedded migrations.
func OpenPostgres(ctx context.Context, dsn string, opts Options) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunPostgresMigrations(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewPostgresStore(db, opts), nil
}

// RunPostgresMigrations applies every pending embedded migration.
func RunPostgresMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type pgDomainRow struct {
	ID           int64        `db:"id"`
	Name         string       `db:"domain"`
	Status       string       `db:"crawl_status"`
	MaxDepth     int          `db:"max_depth"`
	CurrentDepth int          `db:"current_depth"`
	UniqueLinks  int          `db:"total_urls_found"`
	ClaimedBy    string       `db:"claimed_by"`
	CreatedAt    time.Time    `db:"created_at"`
	StartedAt    sql.NullTime `db:"started_at"`
	CompletedAt  sql.NullTime `db:"completed_at"`
}

func (r *pgDomainRow) toModel() *model.SeedDomain {
	return &model.SeedDomain{
		ID:           r.ID,
		Name:         r.Name,
		Status:       model.DomainStatus(r.Status),
		MaxDepth:     r.MaxDepth,
		CurrentDepth: r.CurrentDepth,
		UniqueLinks:  r.UniqueLinks,
		ClaimedBy:    r.ClaimedBy,
		CreatedAt:    r.CreatedAt,
		StartedAt:    nullTime(r.StartedAt),
		CompletedAt:  nullTime(r.CompletedAt),
	}
}

type pgURLRow struct {
	ID           int64        `db:"id"`
	DomainID     int64        `db:"domain_id"`
	URL          string       `db:"url_path"`
	Fingerprint  string       `db:"url_hash"`
	Depth        int          `db:"discovered_at_depth"`
	Status       string       `db:"crawl_status"`
	AnchorText   string       `db:"url_content"`
	ClaimedBy    string       `db:"claimed_by"`
	DiscoveredAt time.Time    `db:"discovered_at"`
	ClaimedAt    sql.NullTime `db:"claimed_at"`
}

func (r *pgURLRow) toModel() *model.CrawledURL {
	return &model.CrawledURL{
		ID:           r.ID,
		DomainID:     r.DomainID,
		URL:          r.URL,
		Fingerprint:  r.Fingerprint,
		Depth:        r.Depth,
		Status:       model.URLStatus(r.Status),
		AnchorText:   r.AnchorText,
		ClaimedBy:    r.ClaimedBy,
		DiscoveredAt: r.DiscoveredAt,
		ClaimedAt:    nullTime(r.ClaimedAt),
	}
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// UpsertSeeds inserts seed domains. Existing domain names keep their row untouched.
func (s *PostgresStore) UpsertSeeds(ctx context.Context, seeds []model.Seed) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, storageErr("upsert_seeds", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `INSERT INTO seed_domain (domain, max_depth) VALUES ($1, $2) ON CONFLICT (domain) DO NOTHING`

	inserted := 0
	for _, seed := range seeds {
		res, err := tx.ExecContext(ctx, query, seed.Domain, seed.Depth())
		if err != nil {
			return 0, storageErr("upsert_seeds", fmt.Errorf("failed to insert seed %s: %w", seed.Domain, err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, storageErr("upsert_seeds", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("upsert_seeds", fmt.Errorf("failed to commit seeds: %w", err))
	}
	return inserted, nil
}

// ClaimNextDomain locks and claims the next domain inside a transaction.
// Another run's in_progress domain is only eligible once its lease expired.
func (s *PostgresStore) ClaimNextDomain(ctx context.Context, runID string) (*model.SeedDomain, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storageErr("claim_next_domain", fmt.Errorf("failed to begin claim transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var row pgDomainRow
	err = tx.GetContext(ctx, &row, `
		SELECT `+domainColumns+`
		FROM seed_domain
		WHERE crawl_status = 'pending'
		   OR (crawl_status = 'in_progress' AND claimed_by <> $1
		       AND (heartbeat_at IS NULL OR heartbeat_at < NOW() - $2::float8 * INTERVAL '1 millisecond'))
		ORDER BY CASE crawl_status WHEN 'in_progress' THEN 0 ELSE 1 END, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, runID, s.claimLease.Milliseconds())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDomain
		}
		return nil, storageErr("claim_next_domain", fmt.Errorf("failed to select claimable domain: %w", err))
	}

	var startedAt time.Time
	err = tx.QueryRowxContext(ctx, `
		UPDATE seed_domain
		SET crawl_status = 'in_progress',
			started_at = COALESCE(started_at, NOW()),
			claimed_by = $1,
			heartbeat_at = NOW()
		WHERE id = $2
		RETURNING started_at`, runID, row.ID).Scan(&startedAt)
	if err != nil {
		return nil, storageErr("claim_next_domain", fmt.Errorf("failed to update claimed domain: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("claim_next_domain", fmt.Errorf("failed to commit claim transaction: %w", err))
	}

	d := row.toModel()
	d.Status = model.DomainInProgress
	d.ClaimedBy = runID
	d.StartedAt = &startedAt
	return d, nil
}

// SeedRootExists reports whether the domain already has a row for the fingerprint.
func (s *PostgresStore) SeedRootExists(ctx context.Context, domainID int64, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM crawled_url WHERE domain_id = $1 AND url_hash = $2)`,
		domainID, fingerprint)
	if err != nil {
		return false, storageErr("seed_root_exists", err)
	}
	return exists, nil
}

// InsertRoot records the domain's root URL at depth 0.
func (s *PostgresStore) InsertRoot(ctx context.Context, domain *model.SeedDomain) (int64, error) {
	root := domain.RootURL()
	return s.InsertURL(ctx, InsertURLParams{
		DomainID:    domain.ID,
		URL:         root,
		Fingerprint: model.Fingerprint(root),
		Depth:       0,
	})
}

// ClaimNextURL locks and claims the lowest-depth claimable URL.
func (s *PostgresStore) ClaimNextURL(ctx context.Context, domainID int64, runID string) (*model.CrawledURL, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storageErr("claim_next_url", fmt.Errorf("failed to begin claim transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var row pgURLRow
	err = tx.GetContext(ctx, &row, `
		SELECT `+urlColumns+`
		FROM crawled_url
		WHERE domain_id = $1
		  AND (crawl_status = 'not_visited'
		   OR (crawl_status = 'in_progress' AND claimed_by <> $2
		       AND (heartbeat_at IS NULL OR heartbeat_at < NOW() - $3::float8 * INTERVAL '1 millisecond')))
		ORDER BY discovered_at_depth, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, domainID, runID, s.claimLease.Milliseconds())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoURL
		}
		return nil, storageErr("claim_next_url", fmt.Errorf("failed to select claimable URL: %w", err))
	}

	var claimedAt time.Time
	err = tx.QueryRowxContext(ctx, `
		UPDATE crawled_url
		SET crawl_status = 'in_progress', claimed_at = NOW(), claimed_by = $1, heartbeat_at = NOW()
		WHERE id = $2
		RETURNING claimed_at`, runID, row.ID).Scan(&claimedAt)
	if err != nil {
		return nil, storageErr("claim_next_url", fmt.Errorf("failed to update claimed URL: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("claim_next_url", fmt.Errorf("failed to commit claim transaction: %w", err))
	}

	u := row.toModel()
	u.Status = model.URLInProgress
	u.ClaimedBy = runID
	u.ClaimedAt = &claimedAt
	return u, nil
}

// RenewClaims refreshes the heartbeat of every in_progress row runID holds.
func (s *PostgresStore) RenewClaims(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("renew_claims", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `
		UPDATE seed_domain SET heartbeat_at = NOW()
		WHERE crawl_status = 'in_progress' AND claimed_by = $1`, runID); err != nil {
		return storageErr("renew_claims", fmt.Errorf("failed to renew domain claims: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE crawled_url SET heartbeat_at = NOW()
		WHERE crawl_status = 'in_progress' AND claimed_by = $1`, runID); err != nil {
		return storageErr("renew_claims", fmt.Errorf("failed to renew URL claims: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return storageErr("renew_claims", fmt.Errorf("failed to commit heartbeat: %w", err))
	}
	return nil
}

// IsVisited reports whether another row with the fingerprint is visited.
func (s *PostgresStore) IsVisited(ctx context.Context, domainID int64, fingerprint string, excludeID int64) (bool, error) {
	var visited bool
	err := s.db.GetContext(ctx, &visited, `
		SELECT EXISTS(
			SELECT 1 FROM crawled_url
			WHERE domain_id = $1 AND url_hash = $2 AND id <> $3 AND crawl_status = 'visited'
		)`, domainID, fingerprint, excludeID)
	if err != nil {
		return false, storageErr("is_visited", err)
	}
	return visited, nil
}

// InsertURL inserts a URL row and refreshes the domain's distinct link count
// in the same transaction.
func (s *PostgresStore) InsertURL(ctx context.Context, p InsertURLParams) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, storageErr("insert_url", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var id int64
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO crawled_url (domain_id, url_path, url_hash, discovered_at_depth, url_content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.DomainID, p.URL, p.Fingerprint, p.Depth, nullString(p.AnchorText)).Scan(&id)
	if err != nil {
		return 0, storageErr("insert_url", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE seed_domain
		SET total_urls_found = (SELECT COUNT(DISTINCT url_hash) FROM crawled_url WHERE domain_id = $1)
		WHERE id = $1`, p.DomainID); err != nil {
		return 0, storageErr("insert_url", fmt.Errorf("failed to update unique links: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("insert_url", fmt.Errorf("failed to commit: %w", err))
	}
	return id, nil
}

// ResolveURLID returns the earliest row id for the fingerprint.
func (s *PostgresStore) ResolveURLID(ctx context.Context, domainID int64, fingerprint string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`SELECT id FROM crawled_url WHERE domain_id = $1 AND url_hash = $2 ORDER BY id LIMIT 1`,
		domainID, fingerprint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storageErr("resolve_url_id", ErrNotFound)
		}
		return 0, storageErr("resolve_url_id", err)
	}
	return id, nil
}

// MarkVisited finishes an in_progress URL as visited.
func (s *PostgresStore) MarkVisited(ctx context.Context, urlID int64) error {
	return s.finishURL(ctx, "mark_visited", urlID, model.URLVisited)
}

// MarkError finishes an in_progress URL as failed.
func (s *PostgresStore) MarkError(ctx context.Context, urlID int64) error {
	return s.finishURL(ctx, "mark_error", urlID, model.URLError)
}

func (s *PostgresStore) finishURL(ctx context.Context, op string, urlID int64, status model.URLStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crawled_url
		SET crawl_status = $1, finished_at = NOW()
		WHERE id = $2 AND crawl_status = 'in_progress'`, string(status), urlID)
	return storageErr(op, err)
}

// UpdateDomainDepth raises the domain's current depth.
func (s *PostgresStore) UpdateDomainDepth(ctx context.Context, domainID int64, depth int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE seed_domain SET current_depth = GREATEST(current_depth, $1)
		WHERE id = $2 AND crawl_status = 'in_progress'`, depth, domainID)
	return storageErr("update_domain_depth", err)
}

// RecordRelationship inserts the edge unless it already exists.
func (s *PostgresStore) RecordRelationship(ctx context.Context, rel *model.Relationship) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO url_relationship
			(domain_id, parent_url_id, child_url_id, parent_depth, child_depth, parent_link_text)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (parent_url_id, child_url_id) DO NOTHING`,
		rel.DomainID, rel.ParentID, rel.ChildID, rel.ParentDepth, rel.ChildDepth, nullString(rel.ParentText))
	if err != nil {
		return false, storageErr("record_relationship", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("record_relationship", err)
	}
	return n > 0, nil
}

// FinalizeDomain marks the domain completed.
func (s *PostgresStore) FinalizeDomain(ctx context.Context, domainID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE seed_domain SET crawl_status = 'completed', completed_at = NOW()
		WHERE id = $1 AND crawl_status <> 'completed'`, domainID)
	return storageErr("finalize_domain", err)
}

// ListDomains returns every domain in id order with its URL status counts.
func (s *PostgresStore) ListDomains(ctx context.Context) ([]DomainSummary, error) {
	var rows []pgDomainRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+domainColumns+` FROM seed_domain ORDER BY id`); err != nil {
		return nil, storageErr("list_domains", err)
	}

	summaries := make([]DomainSummary, 0, len(rows))
	index := make(map[int64]int, len(rows))
	for i := range rows {
		index[rows[i].ID] = len(summaries)
		summaries = append(summaries, DomainSummary{
			Domain: *rows[i].toModel(),
			Counts: make(map[model.URLStatus]int),
		})
	}

	var counts []struct {
		DomainID int64  `db:"domain_id"`
		Status   string `db:"crawl_status"`
		Count    int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &counts, `
		SELECT domain_id, crawl_status, COUNT(*) AS count
		FROM crawled_url GROUP BY domain_id, crawl_status`); err != nil {
		return nil, storageErr("list_domains", err)
	}
	for _, c := range counts {
		if i, ok := index[c.DomainID]; ok {
			summaries[i].Counts[model.URLStatus(c.Status)] = c.Count
		}
	}
	return summaries, nil
}

// CountRelationships returns the number of edges recorded for a domain.
func (s *PostgresStore) CountRelationships(ctx context.Context, domainID int64) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM url_relationship WHERE domain_id = $1`, domainID); err != nil {
		return 0, storageErr("count_relationships", err)
	}
	return n, nil
}
