package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/depthcrawl/internal/model"
)

// DefaultSQLiteFile is the database file name used inside the data directory.
const DefaultSQLiteFile = "depthcrawl.db"

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string

	// claimLease is how long another run's claim stays valid without a heartbeat.
	claimLease time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// Options configures SQLiteStore behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so the status command can read
	// while a crawl is writing.
	EnableWAL bool

	// ClaimLease is how long an in_progress claim belongs to its run after
	// the last heartbeat. Only then may another run take it over.
	ClaimLease time.Duration
}

// DefaultClaimLease is the claim lease used when Options leaves it unset.
const DefaultClaimLease = time.Minute

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
		ClaimLease:        DefaultClaimLease,
	}
}

func (o Options) claimLease() time.Duration {
	if o.ClaimLease <= 0 {
		return DefaultClaimLease
	}
	return o.ClaimLease
}

// OpenSQLite opens or creates the frontier database at dbPath.
// If CreateIfNotExists is false and the file doesn't exist, an error is returned.
func OpenSQLite(dbPath string, opts Options) (*SQLiteStore, error) {
	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run `depthcrawl crawl` or `depthcrawl seed` first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	// Foreign keys are off by default in SQLite and are required for edges.
	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	dsn := fmt.Sprintf("file:%s?mode=%s&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath, mode)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers, which is what makes a claim atomic.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{
		db:         db,
		dbPath:     dbPath,
		claimLease: opts.claimLease(),
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// createTables creates the schema if it doesn't exist.
func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS seed_domain (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL UNIQUE,
		crawl_status TEXT NOT NULL DEFAULT 'pending',
		max_depth INTEGER NOT NULL DEFAULT 5,
		current_depth INTEGER NOT NULL DEFAULT 0,
		total_urls_found INTEGER NOT NULL DEFAULT 0,
		claimed_by TEXT NOT NULL DEFAULT '',
		heartbeat_at TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_seed_domain_status ON seed_domain(crawl_status);

	-- url_path is not unique: a URL reached from several parents
	-- gets one row per parent page.
	CREATE TABLE IF NOT EXISTS crawled_url (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain_id INTEGER NOT NULL REFERENCES seed_domain(id) ON DELETE CASCADE,
		url_path TEXT NOT NULL,
		url_hash TEXT NOT NULL,
		discovered_at_depth INTEGER NOT NULL,
		crawl_status TEXT NOT NULL DEFAULT 'not_visited',
		url_content TEXT,
		claimed_by TEXT NOT NULL DEFAULT '',
		discovered_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		claimed_at DATETIME,
		heartbeat_at TEXT,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_crawled_url_hash ON crawled_url(domain_id, url_hash);
	CREATE INDEX IF NOT EXISTS idx_crawled_url_frontier ON crawled_url(domain_id, crawl_status, discovered_at_depth, id);
	CREATE INDEX IF NOT EXISTS idx_crawled_url_claim ON crawled_url(crawl_status, claimed_by);

	CREATE TABLE IF NOT EXISTS url_relationship (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain_id INTEGER NOT NULL REFERENCES seed_domain(id) ON DELETE CASCADE,
		parent_url_id INTEGER NOT NULL REFERENCES crawled_url(id) ON DELETE CASCADE,
		child_url_id INTEGER NOT NULL REFERENCES crawled_url(id) ON DELETE CASCADE,
		parent_depth INTEGER NOT NULL,
		child_depth INTEGER NOT NULL,
		parent_link_text TEXT,
		discovered_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(parent_url_id, child_url_id)
	);

	CREATE INDEX IF NOT EXISTS idx_url_relationship_domain ON url_relationship(domain_id);
	`

	if _, err := s.db.ExecContext(context.Background(), schema); err != nil {
		return err
	}
	// Files created before claim leases lack the heartbeat columns.
	for _, table := range []string{"seed_domain", "crawled_url"} {
		if err := s.addColumnIfMissing(table, "heartbeat_at", "TEXT"); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) addColumnIfMissing(table, column, typ string) error {
	ctx := context.Background()
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}

// sqliteNow is the heartbeat timestamp. Millisecond text in a fixed layout
// keeps lease comparisons a plain string comparison.
const sqliteNow = `strftime('%Y-%m-%d %H:%M:%f', 'now')`

// staleBefore is the SQL expression for the oldest heartbeat that still holds
// a claim. Its argument is leaseModifier().
const staleBefore = `strftime('%Y-%m-%d %H:%M:%f', 'now', ?)`

func (s *SQLiteStore) leaseModifier() string {
	return fmt.Sprintf("-%.3f seconds", s.claimLease.Seconds())
}

// domainColumns is the column list scanned by scanDomain.
const domainColumns = `id, domain, crawl_status, max_depth, current_depth, total_urls_found,
	claimed_by, created_at, started_at, completed_at`

// urlColumns is the column list scanned by scanURL.
const urlColumns = `id, domain_id, url_path, url_hash, discovered_at_depth, crawl_status,
	COALESCE(url_content, '') AS url_content, claimed_by, discovered_at, claimed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDomain(row rowScanner) (*model.SeedDomain, error) {
	var (
		d         model.SeedDomain
		status    string
		createdAt sql.NullString
		startedAt sql.NullString
		doneAt    sql.NullString
	)
	if err := row.Scan(&d.ID, &d.Name, &status, &d.MaxDepth, &d.CurrentDepth, &d.UniqueLinks,
		&d.ClaimedBy, &createdAt, &startedAt, &doneAt); err != nil {
		return nil, err
	}
	d.Status = model.DomainStatus(status)
	if createdAt.Valid {
		d.CreatedAt = parseTimestamp(createdAt.String)
	}
	d.StartedAt = nullTimestamp(startedAt)
	d.CompletedAt = nullTimestamp(doneAt)
	return &d, nil
}

func scanURL(row rowScanner) (*model.CrawledURL, error) {
	var (
		u            model.CrawledURL
		status       string
		discoveredAt sql.NullString
		claimedAt    sql.NullString
	)
	if err := row.Scan(&u.ID, &u.DomainID, &u.URL, &u.Fingerprint, &u.Depth, &status,
		&u.AnchorText, &u.ClaimedBy, &discoveredAt, &claimedAt); err != nil {
		return nil, err
	}
	u.Status = model.URLStatus(status)
	if discoveredAt.Valid {
		u.DiscoveredAt = parseTimestamp(discoveredAt.String)
	}
	u.ClaimedAt = nullTimestamp(claimedAt)
	return &u, nil
}

// UpsertSeeds inserts seed domains. Existing domain names keep their row untouched.
func (s *SQLiteStore) UpsertSeeds(ctx context.Context, seeds []model.Seed) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("upsert_seeds", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `INSERT INTO seed_domain (domain, max_depth) VALUES (?, ?) ON CONFLICT(domain) DO NOTHING`

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

// ClaimNextDomain claims the next domain. Domains whose lease another run let
// expire are resumed before pending ones are started.
func (s *SQLiteStore) ClaimNextDomain(ctx context.Context, runID string) (*model.SeedDomain, error) {
	query := `
	UPDATE seed_domain
	SET crawl_status = 'in_progress',
		started_at = COALESCE(started_at, CURRENT_TIMESTAMP),
		claimed_by = ?,
		heartbeat_at = ` + sqliteNow + `
	WHERE id = (
		SELECT id FROM seed_domain
		WHERE crawl_status = 'pending'
		   OR (crawl_status = 'in_progress' AND claimed_by <> ?
		       AND (heartbeat_at IS NULL OR heartbeat_at < ` + staleBefore + `))
		ORDER BY CASE crawl_status WHEN 'in_progress' THEN 0 ELSE 1 END, id
		LIMIT 1
	)
	RETURNING ` + domainColumns

	d, err := scanDomain(s.db.QueryRowContext(ctx, query, runID, runID, s.leaseModifier()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDomain
		}
		return nil, storageErr("claim_next_domain", err)
	}
	return d, nil
}

// SeedRootExists reports whether the domain already has a row for the fingerprint.
func (s *SQLiteStore) SeedRootExists(ctx context.Context, domainID int64, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM crawled_url WHERE domain_id = ? AND url_hash = ?)`,
		domainID, fingerprint).Scan(&exists)
	if err != nil {
		return false, storageErr("seed_root_exists", err)
	}
	return exists, nil
}

// InsertRoot records the domain's root URL at depth 0.
func (s *SQLiteStore) InsertRoot(ctx context.Context, domain *model.SeedDomain) (int64, error) {
	root := domain.RootURL()
	return s.InsertURL(ctx, InsertURLParams{
		DomainID:    domain.ID,
		URL:         root,
		Fingerprint: model.Fingerprint(root),
		Depth:       0,
	})
}

// ClaimNextURL claims the claimable URL with the lowest depth, oldest first.
// An in_progress URL of another run is claimable once its lease expired.
func (s *SQLiteStore) ClaimNextURL(ctx context.Context, domainID int64, runID string) (*model.CrawledURL, error) {
	query := `
	UPDATE crawled_url
	SET crawl_status = 'in_progress',
		claimed_at = CURRENT_TIMESTAMP,
		claimed_by = ?,
		heartbeat_at = ` + sqliteNow + `
	WHERE id = (
		SELECT id FROM crawled_url
		WHERE domain_id = ?
		  AND (crawl_status = 'not_visited'
		   OR (crawl_status = 'in_progress' AND claimed_by <> ?
		       AND (heartbeat_at IS NULL OR heartbeat_at < ` + staleBefore + `)))
		ORDER BY discovered_at_depth, id
		LIMIT 1
	)
	RETURNING ` + urlColumns

	u, err := scanURL(s.db.QueryRowContext(ctx, query, runID, domainID, runID, s.leaseModifier()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoURL
		}
		return nil, storageErr("claim_next_url", err)
	}
	return u, nil
}

// RenewClaims refreshes the heartbeat of every in_progress domain and URL
// claimed by runID.
func (s *SQLiteStore) RenewClaims(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("renew_claims", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, table := range []string{"seed_domain", "crawled_url"} {
		_, err := tx.ExecContext(ctx, `UPDATE `+table+` SET heartbeat_at = `+sqliteNow+`
			WHERE crawl_status = 'in_progress' AND claimed_by = ?`, runID)
		if err != nil {
			return storageErr("renew_claims", fmt.Errorf("failed to renew %s claims: %w", table, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("renew_claims", fmt.Errorf("failed to commit heartbeat: %w", err))
	}
	return nil
}

// IsVisited reports whether another row with the fingerprint is visited.
func (s *SQLiteStore) IsVisited(ctx context.Context, domainID int64, fingerprint string, excludeID int64) (bool, error) {
	var visited bool
	err := s.db.QueryRowContext(ctx, `
	SELECT EXISTS(
		SELECT 1 FROM crawled_url
		WHERE domain_id = ? AND url_hash = ? AND id <> ? AND crawl_status = 'visited'
	)`, domainID, fingerprint, excludeID).Scan(&visited)
	if err != nil {
		return false, storageErr("is_visited", err)
	}
	return visited, nil
}

// InsertURL inserts a URL row and refreshes the domain's distinct link count
// in the same transaction.
func (s *SQLiteStore) InsertURL(ctx context.Context, p InsertURLParams) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("insert_url", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	res, err := tx.ExecContext(ctx, `
	INSERT INTO crawled_url (domain_id, url_path, url_hash, discovered_at_depth, url_content)
	VALUES (?, ?, ?, ?, ?)`,
		p.DomainID, p.URL, p.Fingerprint, p.Depth, nullString(p.AnchorText))
	if err != nil {
		return 0, storageErr("insert_url", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("insert_url", err)
	}

	if _, err := tx.ExecContext(ctx, `
	UPDATE seed_domain
	SET total_urls_found = (SELECT COUNT(DISTINCT url_hash) FROM crawled_url WHERE domain_id = ?)
	WHERE id = ?`, p.DomainID, p.DomainID); err != nil {
		return 0, storageErr("insert_url", fmt.Errorf("failed to update unique links: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("insert_url", fmt.Errorf("failed to commit: %w", err))
	}
	return id, nil
}

// ResolveURLID returns the earliest row id for the fingerprint.
func (s *SQLiteStore) ResolveURLID(ctx context.Context, domainID int64, fingerprint string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM crawled_url WHERE domain_id = ? AND url_hash = ? ORDER BY id LIMIT 1`,
		domainID, fingerprint).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storageErr("resolve_url_id", ErrNotFound)
		}
		return 0, storageErr("resolve_url_id", err)
	}
	return id, nil
}

// MarkVisited finishes an in_progress URL as visited.
func (s *SQLiteStore) MarkVisited(ctx context.Context, urlID int64) error {
	return s.finishURL(ctx, "mark_visited", urlID, model.URLVisited)
}

// MarkError finishes an in_progress URL as failed.
func (s *SQLiteStore) MarkError(ctx context.Context, urlID int64) error {
	return s.finishURL(ctx, "mark_error", urlID, model.URLError)
}

// finishURL only touches rows that are still in_progress, so a terminal row
// is never rewritten.
func (s *SQLiteStore) finishURL(ctx context.Context, op string, urlID int64, status model.URLStatus) error {
	_, err := s.db.ExecContext(ctx, `
	UPDATE crawled_url
	SET crawl_status = ?, finished_at = CURRENT_TIMESTAMP
	WHERE id = ? AND crawl_status = 'in_progress'`, string(status), urlID)
	return storageErr(op, err)
}

// UpdateDomainDepth raises the domain's current depth.
func (s *SQLiteStore) UpdateDomainDepth(ctx context.Context, domainID int64, depth int) error {
	_, err := s.db.ExecContext(ctx, `
	UPDATE seed_domain SET current_depth = MAX(current_depth, ?)
	WHERE id = ? AND crawl_status = 'in_progress'`, depth, domainID)
	return storageErr("update_domain_depth", err)
}

// RecordRelationship inserts the edge unless it already exists.
// It returns true when a new row was written.
func (s *SQLiteStore) RecordRelationship(ctx context.Context, rel *model.Relationship) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO url_relationship
		(domain_id, parent_url_id, child_url_id, parent_depth, child_depth, parent_link_text)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(parent_url_id, child_url_id) DO NOTHING`,
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
func (s *SQLiteStore) FinalizeDomain(ctx context.Context, domainID int64) error {
	_, err := s.db.ExecContext(ctx, `
	UPDATE seed_domain SET crawl_status = 'completed', completed_at = CURRENT_TIMESTAMP
	WHERE id = ? AND crawl_status <> 'completed'`, domainID)
	return storageErr("finalize_domain", err)
}

// ListDomains returns every domain in id order with its URL status counts.
func (s *SQLiteStore) ListDomains(ctx context.Context) ([]DomainSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+domainColumns+` FROM seed_domain ORDER BY id`)
	if err != nil {
		return nil, storageErr("list_domains", err)
	}
	defer rows.Close()

	var summaries []DomainSummary
	index := make(map[int64]int)
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, storageErr("list_domains", err)
		}
		index[d.ID] = len(summaries)
		summaries = append(summaries, DomainSummary{Domain: *d, Counts: make(map[model.URLStatus]int)})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list_domains", err)
	}

	countRows, err := s.db.QueryContext(ctx,
		`SELECT domain_id, crawl_status, COUNT(*) FROM crawled_url GROUP BY domain_id, crawl_status`)
	if err != nil {
		return nil, storageErr("list_domains", err)
	}
	defer countRows.Close()

	for countRows.Next() {
		var (
			domainID int64
			status   string
			count    int
		)
		if err := countRows.Scan(&domainID, &status, &count); err != nil {
			return nil, storageErr("list_domains", err)
		}
		if i, ok := index[domainID]; ok {
			summaries[i].Counts[model.URLStatus(status)] = count
		}
	}
	if err := countRows.Err(); err != nil {
		return nil, storageErr("list_domains", err)
	}
	return summaries, nil
}

// CountRelationships returns the number of edges recorded for a domain.
func (s *SQLiteStore) CountRelationships(ctx context.Context, domainID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM url_relationship WHERE domain_id = ?`, domainID).Scan(&n); err != nil {
		return 0, storageErr("count_relationships", err)
	}
	return n, nil
}

// nullString stores empty strings as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
