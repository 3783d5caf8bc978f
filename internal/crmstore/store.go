// =============================================================================
// pouch-ops - CRM Store
// =============================================================================
//
// This module reads and writes the CRM inquiries table that the storefront's
// contact forms and the PayPal importer share.
//
// BACKENDS:
//   - RESTStore     : the hosted PostgREST data API (https:// store URLs)
//   - PostgresStore : direct lib/pq connection (postgres:// DSNs)
//
// Each import calls the store exactly twice: one existence query for the
// source tag, then one bulk insert of the new rows.
//
// =============================================================================

package crmstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ginjaninja78/pouch-ops/internal/config"
)

// Inquiry is one row of the CRM inquiries table.
type Inquiry struct {
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Company       string    `json:"company"`
	Message       string    `json:"message"`
	PackagingType string    `json:"packaging_type"`
	Subject       string    `json:"subject"`
	Source        string    `json:"source"`
	Status        string    `json:"status"`
	Priority      string    `json:"priority"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store is the table-oriented client the importer needs: one filtered read
// and one bulk insert per run.
type Store interface {
	// ExistingEmails returns the lower-cased emails of rows tagged with source.
	// Rows stored with an empty email contribute "".
	ExistingEmails(ctx context.Context, source string) (map[string]struct{}, error)

	// InsertInquiries writes rows in a single request and returns how many
	// were written.
	InsertInquiries(ctx context.Context, rows []Inquiry) (int, error)

	// Close releases connections.
	Close() error
}

// Options tune a store client.
type Options struct {
	Table    string
	PageSize int
	Timeout  time.Duration
}

// New returns the Store matching the credentials: PostgreSQL for postgres://
// DSNs, the REST data API otherwise.
func New(creds config.Credentials, opts Options) (Store, error) {
	if opts.Table == "" {
		return nil, fmt.Errorf("store table is required")
	}
	if creds.IsPostgres() {
		return OpenPostgres(creds.BaseURL, opts.Table)
	}
	return NewREST(creds.BaseURL, creds.APIKey, opts), nil
}

// APIError is a non-2xx response from the REST data API.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("crm store returned HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err is a transient failure worth running the
// import again for: timeouts, network errors, 429 and 5xx responses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}
