// =============================================================================
// pouch-ops - CRM Store PostgreSQL Backend
// =============================================================================
//
// This module writes straight to the CRM database when the importer runs
// next to it. The batch is streamed with COPY inside one transaction, so a
// failed run leaves nothing half-written.
//
// =============================================================================

package crmstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgresStore writes straight to the CRM database when the importer runs
// next to it. Inserts happen in one transaction, so a failed run leaves
// nothing half-written.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// OpenPostgres opens a lib/pq handle for dsn. The connection is established
// lazily on the first query.
func OpenPostgres(dsn, table string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewPostgres(db, table), nil
}

// NewPostgres wraps an existing handle.
func NewPostgres(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, table: table}
}

// ExistingEmails selects the emails already imported for source.
func (s *PostgresStore) ExistingEmails(ctx context.Context, source string) (map[string]struct{}, error) {
	query := fmt.Sprintf("SELECT email FROM %s WHERE source = $1", pq.QuoteIdentifier(s.table))

	rows, err := s.db.QueryContext(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing emails: %w", err)
	}
	defer rows.Close()

	emails := make(map[string]struct{})
	for rows.Next() {
		var email sql.NullString
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		// "" stays in the set so email-less imports match on the next run.
		if email.Valid {
			emails[strings.ToLower(strings.TrimSpace(email.String))] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emails: %w", err)
	}
	return emails, nil
}

// inquiryColumns is the COPY column order; InsertInquiries sends values in
// the same order.
var inquiryColumns = []string{
	"name", "email", "phone", "company", "message", "packaging_type", "subject",
	"source", "status", "priority", "notes", "created_at", "updated_at",
}

// InsertInquiries streams all rows with COPY inside a single transaction.
// lib/pq buffers the rows and sends them when the statement is flushed, so
// the batch costs one round trip rather than one per row.
func (s *PostgresStore) InsertInquiries(ctx context.Context, rows []Inquiry) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(s.table, inquiryColumns...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.Name, r.Email, r.Phone, r.Company, r.Message, r.PackagingType, r.Subject,
			r.Source, r.Status, r.Priority, r.Notes, r.CreatedAt, r.UpdatedAt,
		); err != nil {
			return 0, fmt.Errorf("failed to buffer row for %s: %w", r.Email, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return 0, fmt.Errorf("failed to copy %d rows: %w", len(rows), err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return len(rows), nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
