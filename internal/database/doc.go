// Package database implements the crawl frontier store.
//
// The store persists three tables:
//   - seed_domain: configured domains and their lifecycle
//   - crawled_url: every discovered URL row, duplicates allowed
//   - url_relationship: unique parent to child discovery edges
//
// Two backends implement Store. SQLiteStore (modernc.org/sqlite) keeps the
// frontier in a single file and is the default. PostgresStore (sqlx + lib/pq)
// is used when several machines share one frontier; its schema is managed by
// embedded golang-migrate migrations.
//
// Claims are atomic. SQLite claims are a single UPDATE over a sub-select on a
// single connection. PostgreSQL claims lock the candidate row with
// FOR UPDATE SKIP LOCKED inside a transaction, so concurrent claimers never
// receive the same row.
//
// Claims are leases. Every claim stamps heartbeat_at, and RenewClaims keeps
// the rows of a live run fresh. A row left in_progress by another run is
// claimable again only after its heartbeat is older than Options.ClaimLease.
// Rows claimed by the calling run are never handed out twice.
package database
