// =============================================================================
// pouch-ops - CRM Store REST Backend
// =============================================================================
//
// This module talks to the PostgREST-style data API behind the storefront.
//
// REQUESTS:
//   - GET  /rest/v1/{table}?select=email&source=eq.{tag}&order=id.asc
//          paged with limit/offset until an empty page
//   - POST /rest/v1/{table} with the whole batch as one JSON array
//
// Non-2xx responses become *APIError carrying the status and body.
//
// =============================================================================

package crmstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// RESTStore talks to a PostgREST-style data API (the hosted backend the
// storefront uses): tables under /rest/v1, filters as query parameters.
type RESTStore struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	table      string
	pageSize   int
}

// NewREST constructs a REST store client.
func NewREST(baseURL, apiKey string, opts Options) *RESTStore {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &RESTStore{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		table:      opts.Table,
		pageSize:   pageSize,
	}
}

type emailRow struct {
	Email *string `json:"email"`
}

// ExistingEmails pages through `select=email&source=eq.<source>`.
//
// The server may cap a page below the requested limit (PostgREST max-rows),
// so the offset advances by what was actually returned and only an empty
// page ends the scan. Rows are ordered by id to keep offsets stable.
//
// An empty email is kept as "" so that rows imported without one are
// recognised on the next run. NULL emails belong to other writers and are
// skipped.
func (s *RESTStore) ExistingEmails(ctx context.Context, source string) (map[string]struct{}, error) {
	emails := make(map[string]struct{})

	for offset := 0; ; {
		q := url.Values{}
		q.Set("select", "email")
		q.Set("source", "eq."+source)
		q.Set("order", "id.asc")
		q.Set("limit", strconv.Itoa(s.pageSize))
		q.Set("offset", strconv.Itoa(offset))

		var page []emailRow
		if err := s.doRequest(ctx, http.MethodGet, q, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to query existing emails: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, r := range page {
			if r.Email != nil {
				emails[strings.ToLower(strings.TrimSpace(*r.Email))] = struct{}{}
			}
		}
		offset += len(page)
	}

	return emails, nil
}

// InsertInquiries posts all rows as one JSON array.
func (s *RESTStore) InsertInquiries(ctx context.Context, rows []Inquiry) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.doRequest(ctx, http.MethodPost, nil, rows, nil); err != nil {
		return 0, fmt.Errorf("failed to insert inquiries: %w", err)
	}
	return len(rows), nil
}

// Close is a no-op; the HTTP client holds no dedicated resources.
func (s *RESTStore) Close() error {
	return nil
}

// doRequest performs one call against the table endpoint and decodes a JSON
// response into result when result is non-nil.
func (s *RESTStore) doRequest(ctx context.Context, method string, query url.Values, body any, result any) error {
	endpoint := s.baseURL + "/rest/v1/" + url.PathEscape(s.table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=minimal")
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Debug().
		Str("method", method).
		Str("table", s.table).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("crm store request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
